package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

// Session file and directory names, fixed across sessions.
const (
	FramesLogName  = "frames.jsonl"
	EventsLogName  = "events.jsonl"
	SummaryName    = "summary.csv"
	ScalarDirName  = "scalar"
	RGBDirName     = "rgb"
	DepthDirName   = "depth"
	sessionPrefix  = "session_"
	sessionTimeFmt = "20060102_150405"
)

// QCWindows are the acceptance windows behind the per-frame QC flags.
type QCWindows struct {
	DistanceMinMm float64
	DistanceMaxMm float64
	TiltMaxDeg    float64
	// SaturationMax is the highest acceptable channel mean in [0,1].
	SaturationMax float64
}

// Config controls the manager. Enabled=false makes every append a guaranteed
// no-op that touches nothing on disk.
type Config struct {
	Enabled bool
	// AutoStart opens a session lazily on the first AppendFrame when none
	// is active.
	AutoStart  bool
	RootDir    string
	CSVEnabled bool
	QC         QCWindows
}

// Grids are the binary artifacts optionally attached to one frame append.
// Nil slices are skipped.
type Grids struct {
	Scalar []float32
	RGBR   []float32
	RGBG   []float32
	RGBB   []float32
	Depth  []float32
}

type session struct {
	id            string
	startEpochMs  int64
	dir           string
	frameWriter   *Writer
	eventWriter   *Writer
	summaryWriter *Writer
	headerWritten bool
	frameIndex    int
}

// Manager owns at most one active export session and its writers. The frame,
// summary, and event writers drain independently; the only ordering promise
// is per-file FIFO for appends submitted through this manager.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	sess *session

	framesAppended atomic.Uint64
	eventsAppended atomic.Uint64
	gridWriteErrs  atomic.Uint64
	gridTasks      sync.WaitGroup
	retired        []*Writer
}

// NewManager builds a manager; no directories are created until a session
// begins.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

// BeginSession creates the session directory layout and writers. Calling it
// while a session is open returns the existing id; it never clobbers an
// active session. With export disabled it returns an empty id and nil error.
func (m *Manager) BeginSession() (string, error) {
	if !m.cfg.Enabled {
		return "", nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beginLocked()
}

func (m *Manager) beginLocked() (string, error) {
	if m.sess != nil {
		return m.sess.id, nil
	}
	now := time.Now()
	id := sessionPrefix + now.UTC().Format(sessionTimeFmt)
	dir := filepath.Join(m.cfg.RootDir, id)
	for n := 2; ; n++ {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			break
		}
		dir = filepath.Join(m.cfg.RootDir, fmt.Sprintf("%s_%d", id, n))
	}
	id = filepath.Base(dir)
	for _, sub := range []string{ScalarDirName, RGBDirName, DepthDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create session dir: %w", err)
		}
	}
	s := &session{
		id:           id,
		startEpochMs: now.UnixMilli(),
		dir:          dir,
		frameWriter:  NewWriter(filepath.Join(dir, FramesLogName), m.logger),
		eventWriter:  NewWriter(filepath.Join(dir, EventsLogName), m.logger),
	}
	if m.cfg.CSVEnabled {
		s.summaryWriter = NewWriter(filepath.Join(dir, SummaryName), m.logger)
	}
	m.sess = s
	m.logger.Info("export session started",
		zap.String("session", id), zap.String("dir", dir))
	m.appendEventLocked(now.UnixMilli(), "session_start", "")
	return id, nil
}

// ActiveSession returns the open session id, if any.
func (m *Manager) ActiveSession() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return "", false
	}
	return m.sess.id, true
}

// AppendFrame persists one analysis record and its attached grids. No-op when
// export is disabled or no session is open (unless AutoStart is set). Grid
// artifacts are written by fire-and-forget tasks with no ordering relation to
// the log lines of the same frame.
func (m *Manager) AppendFrame(rec types.AnalysisRecord, grids Grids) {
	if !m.cfg.Enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		if !m.cfg.AutoStart {
			return
		}
		if _, err := m.beginLocked(); err != nil {
			m.logger.Warn("auto-start session failed", zap.Error(err))
			return
		}
	}
	s := m.sess
	idx := s.frameIndex
	s.frameIndex++

	out := FrameExportRecord{
		SchemaVersion:  SchemaVersion,
		RecordType:     "frame",
		FrameIndex:     idx,
		AnalysisRecord: rec,
	}
	out.ScalarMean, out.ScalarStd = fieldStats(rec.ScalarField)
	out.QC = m.qcFlags(rec)

	// Paths are fixed by (kind, index) before the artifact tasks run, so
	// the record can reference them without waiting.
	type artifact struct {
		rel  string
		data []float32
	}
	var artifacts []artifact
	add := func(rel string, data []float32, dst *string) {
		if len(data) == 0 {
			return
		}
		*dst = rel
		artifacts = append(artifacts, artifact{rel: rel, data: data})
	}
	add(filepath.Join(ScalarDirName, fmt.Sprintf("scalar_%06d.bin", idx)), grids.Scalar, &out.Paths.Scalar)
	add(filepath.Join(RGBDirName, fmt.Sprintf("rgbR_%06d.bin", idx)), grids.RGBR, &out.Paths.RGBR)
	add(filepath.Join(RGBDirName, fmt.Sprintf("rgbG_%06d.bin", idx)), grids.RGBG, &out.Paths.RGBG)
	add(filepath.Join(RGBDirName, fmt.Sprintf("rgbB_%06d.bin", idx)), grids.RGBB, &out.Paths.RGBB)
	add(filepath.Join(DepthDirName, fmt.Sprintf("depth_%06d.bin", idx)), grids.Depth, &out.Paths.Depth)
	for _, a := range artifacts {
		path := filepath.Join(s.dir, a.rel)
		data := a.data
		m.gridTasks.Add(1)
		go func() {
			defer m.gridTasks.Done()
			if err := os.WriteFile(path, encodeGrid(data), 0o644); err != nil {
				m.gridWriteErrs.Add(1)
				m.logger.Warn("grid write failed", zap.String("path", path), zap.Error(err))
			}
		}()
	}

	line, err := json.Marshal(&out)
	if err != nil {
		m.logger.Warn("frame record encode failed", zap.Error(err))
		return
	}
	s.frameWriter.Write(append(line, '\n'))
	if s.summaryWriter != nil {
		if !s.headerWritten {
			s.summaryWriter.Write(CSVHeader())
			s.headerWritten = true
		}
		s.summaryWriter.Write(out.CSVRow())
	}
	m.framesAppended.Add(1)
}

func (m *Manager) qcFlags(rec types.AnalysisRecord) QCFlags {
	qc := QCFlags{
		DistanceOK:   true,
		TiltOK:       true,
		SaturationOK: true,
		PairingOK:    rec.PairStatus == types.PairPaired,
	}
	w := m.cfg.QC
	if w.DistanceMaxMm > 0 {
		qc.DistanceOK = rec.Meta.DistanceMm >= w.DistanceMinMm && rec.Meta.DistanceMm <= w.DistanceMaxMm
	}
	if w.TiltMaxDeg > 0 {
		qc.TiltOK = rec.Meta.TiltDeg <= w.TiltMaxDeg && rec.Meta.TiltDeg >= -w.TiltMaxDeg
	}
	if w.SaturationMax > 0 {
		qc.SaturationOK = rec.MeanR <= w.SaturationMax && rec.MeanG <= w.SaturationMax && rec.MeanB <= w.SaturationMax
	}
	return qc
}

// AppendEvent writes one line to the session's event log. Same gating rules
// as AppendFrame, minus auto-start.
func (m *Manager) AppendEvent(timestampMs int64, name, note string) {
	if !m.cfg.Enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return
	}
	m.appendEventLocked(timestampMs, name, note)
}

func (m *Manager) appendEventLocked(timestampMs int64, name, note string) {
	ev := EventExportRecord{
		SchemaVersion: SchemaVersion,
		RecordType:    "event",
		ID:            uuid.NewString(),
		TimestampMs:   timestampMs,
		Name:          name,
		Note:          note,
	}
	line, err := json.Marshal(&ev)
	if err != nil {
		m.logger.Warn("event record encode failed", zap.Error(err))
		return
	}
	m.sess.eventWriter.Write(append(line, '\n'))
	m.eventsAppended.Add(1)
}

// EndSession closes the session. Enqueued writes finish in the background;
// there is no flush barrier. Subsequent appends are no-ops until a new
// session begins.
func (m *Manager) EndSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return
	}
	m.appendEventLocked(time.Now().UnixMilli(), "session_end", "")
	s := m.sess
	m.sess = nil
	for _, w := range []*Writer{s.frameWriter, s.eventWriter, s.summaryWriter} {
		if w != nil {
			w.Close()
			m.retired = append(m.retired, w)
		}
	}
	m.logger.Info("export session ended",
		zap.String("session", s.id), zap.Int("frames", s.frameIndex))
}

// Drain blocks until retired writers and in-flight grid tasks have finished
// their backlog. Best-effort shutdown hook; the session contract itself does
// not wait.
func (m *Manager) Drain() {
	m.mu.Lock()
	retired := m.retired
	m.retired = nil
	m.mu.Unlock()
	for _, w := range retired {
		w.Wait()
	}
	m.gridTasks.Wait()
}

// Stats reports export counters for the status surface.
func (m *Manager) Stats() map[string]any {
	stats := map[string]any{
		"export_frames_total":         m.framesAppended.Load(),
		"export_events_total":         m.eventsAppended.Load(),
		"export_grid_write_err_total": m.gridWriteErrs.Load(),
	}
	var drops uint64
	m.mu.Lock()
	if m.sess != nil {
		for _, w := range []*Writer{m.sess.frameWriter, m.sess.eventWriter, m.sess.summaryWriter} {
			if w != nil {
				drops += w.Drops()
			}
		}
	}
	m.mu.Unlock()
	stats["export_writer_drops_total"] = drops
	return stats
}
