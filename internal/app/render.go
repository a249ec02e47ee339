package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/vidsplit/client/internal/models"
	"github.com/vidsplit/client/internal/splitconfig"
	"github.com/vidsplit/client/internal/timecode"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// uploadProgress returns a progress callback for an upload of size bytes.
// Terminals get a progress bar; other writers get nothing.
func uploadProgress(w io.Writer, name string, size int64) (func(float64), func()) {
	if !isTerminal(w) || size <= 0 {
		return nil, func() {}
	}
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("uploading "+name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	report := func(pct float64) {
		_ = bar.Set64(int64(pct / 100 * float64(size)))
	}
	return report, func() { _ = bar.Finish() }
}

func renderVideoInfo(info models.VideoInfo) string {
	rows := [][]string{
		{"Duration", timecode.Format(info.DurationSeconds)},
		{"Format", info.Format},
		{"Size", humanize.Bytes(uint64(max(info.SizeBytes, 0)))},
		{"Streams", fmt.Sprintf("%d video, %d audio, %d subtitle", info.VideoStreamCount, info.AudioStreamCount, info.SubtitleStreamCount)},
		{"Chapters", fmt.Sprint(len(info.Chapters))},
	}
	return renderTable([]string{"Video", ""}, rows, nil)
}

func renderSegments(segments []splitconfig.Segment) string {
	rows := make([][]string, 0, len(segments))
	for i, seg := range segments {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			timecode.Format(seg.Start),
			timecode.Format(seg.End),
			timecode.Format(seg.Duration()),
			seg.Title,
		})
	}
	return renderTable([]string{"#", "Start", "End", "Length", "Title"}, rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft})
}

func renderJob(job models.Job) string {
	rows := [][]string{
		{"Job", job.ID},
		{"Status", string(job.Status)},
		{"Progress", fmt.Sprintf("%.0f%%", job.ProgressPercent)},
	}
	if job.ErrorMessage != "" {
		rows = append(rows, []string{"Error", job.ErrorMessage})
	}
	if len(job.Splits) > 0 {
		files := make([]string, 0, len(job.Splits))
		for _, split := range job.Splits {
			files = append(files, split.File)
		}
		rows = append(rows, []string{"Segments", strings.Join(files, "\n")})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderHistory(entries []models.HistoryEntry, now time.Time) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		status := string(entry.Status)
		if entry.Error != "" {
			status += ": " + entry.Error
		}
		rows = append(rows, []string{
			entry.JobID,
			entry.FileName,
			string(entry.Method),
			status,
			fmt.Sprint(entry.SplitCount),
			humanize.RelTime(entry.SubmittedAt, now, "ago", "from now"),
		})
	}
	return renderTable([]string{"Job", "File", "Method", "Status", "Segments", "Submitted"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft})
}

func renderUser(profile models.UserProfile) string {
	twoFactor := "off"
	if profile.Is2FAEnabled {
		twoFactor = "on"
	}
	rows := [][]string{
		{"Username", profile.Username},
		{"Name", profile.Name},
		{"Email", profile.Email},
		{"Role", string(profile.Role)},
		{"2FA", twoFactor},
	}
	return renderTable([]string{"Account", ""}, rows, nil)
}
