package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/modelbashir-create/ChromaVue-V1/internal/config"
	"github.com/modelbashir-create/ChromaVue-V1/internal/export"
)

var sessionsRoot string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List exported sessions",
	RunE:  listSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsRoot, "root", "", "Session export root (defaults to config)")
}

type sessionInfo struct {
	id      string
	started time.Time
	frames  int
	bytes   int64
}

func listSessions(cmd *cobra.Command, args []string) error {
	root := sessionsRoot
	if root == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		root = cfg.Export.RootDir
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no sessions")
			return nil
		}
		return fmt.Errorf("read sessions root: %w", err)
	}

	var infos []sessionInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "session_") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		info := sessionInfo{
			id:      entry.Name(),
			started: parseSessionTime(entry.Name()),
			frames:  countLines(filepath.Join(dir, export.FramesLogName)),
			bytes:   dirSize(dir),
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].id < infos[j].id })

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"SESSION", "STARTED", "FRAMES", "SIZE"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	for _, info := range infos {
		started := ""
		if !info.started.IsZero() {
			started = info.started.Format("2006-01-02 15:04:05")
		}
		tw.AppendRow(table.Row{info.id, started, info.frames, formatBytes(info.bytes)})
	}
	fmt.Println(tw.Render())
	return nil
}

func parseSessionTime(id string) time.Time {
	name := strings.TrimPrefix(id, "session_")
	if i := strings.LastIndexByte(name, '_'); i > len("20060102") {
		// strip a collision suffix if present
		if _, err := strconv.Atoi(name[i+1:]); err == nil && len(name) > len("20060102_150405") {
			name = name[:i]
		}
	}
	t, err := time.ParseInLocation("20060102_150405", name, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	count := 0
	for scanner.Scan() {
		count++
	}
	return count
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
