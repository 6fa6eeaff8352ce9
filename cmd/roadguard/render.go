package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"roadguard/internal/chart"
	"roadguard/internal/models"
)

const barWidth = 40

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

func (a *app) when(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.In(a.loc).Format("Jan 2, 2006 15:04")
}

func (a *app) printAlerts(alerts []models.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(a.out, dimStyle.Render("No alerts generated yet."))
		return
	}
	rows := make([][]string, 0, len(alerts))
	for _, al := range alerts {
		rows = append(rows, []string{
			a.when(al.Time), al.Location, al.Details, strings.Join(al.NotifiedHospitals, ", "), al.ID,
		})
	}
	renderTable(a.out, []string{"Time", "Location", "Details", "Hospitals notified", "ID"}, rows)
}

func (a *app) printCameras(cameras []models.Camera) {
	if len(cameras) == 0 {
		fmt.Fprintln(a.out, dimStyle.Render("No cameras found. Add cameras from the Admin Panel."))
		return
	}
	rows := make([][]string, 0, len(cameras))
	for _, c := range cameras {
		detection := "off"
		if c.DetectionActive {
			detection = okStyle.Render("active")
		}
		rows = append(rows, []string{c.ID, c.Name, c.Location, detection, c.URL})
	}
	renderTable(a.out, []string{"ID", "Name", "Location", "Detection", "URL"}, rows)
}

func (a *app) printStreams(streams []models.Stream) {
	if len(streams) == 0 {
		fmt.Fprintln(a.out, dimStyle.Render("No streams found."))
		return
	}
	rows := make([][]string, 0, len(streams))
	for _, s := range streams {
		state := "stopped"
		if s.IsActive {
			state = okStyle.Render("active")
		}
		rows = append(rows, []string{s.ID, s.VideoPath, state, a.when(s.CreatedAt), s.StreamURL})
	}
	renderTable(a.out, []string{"ID", "Video", "State", "Created", "Stream URL"}, rows)
}

func (a *app) printUsers(users []models.User) {
	if len(users) == 0 {
		fmt.Fprintln(a.out, dimStyle.Render("No users found."))
		return
	}
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.ID, u.Name, u.Email, string(u.Role), string(u.ApprovalStatus), a.when(u.CreatedAt)})
	}
	renderTable(a.out, []string{"ID", "Name", "Email", "Role", "Approval", "Created"}, rows)
}

// printChart draws one horizontal bar per bucket, scaled to the busiest
func (a *app) printChart(title string, bars []chart.Bar) {
	fmt.Fprintln(a.out, titleStyle.Render(title))
	max := 0
	labelWidth := 0
	for _, b := range bars {
		if b.Count > max {
			max = b.Count
		}
		if w := lipgloss.Width(b.Label); w > labelWidth {
			labelWidth = w
		}
	}
	for _, b := range bars {
		n := 0
		if max > 0 {
			n = b.Count * barWidth / max
		}
		if b.Count > 0 && n == 0 {
			n = 1
		}
		fmt.Fprintf(a.out, "%-*s %s %d\n", labelWidth, b.Label, barStyle.Render(strings.Repeat("█", n)), b.Count)
	}
}

func (a *app) printStats(s chart.Stats, at time.Time) {
	fmt.Fprintf(a.out, "%s  alerts %d · active streams %d · cameras %d · users %d\n",
		dimStyle.Render(at.In(a.loc).Format("15:04:05")), s.Alerts, s.ActiveStreams, s.Cameras, s.Users)
}
