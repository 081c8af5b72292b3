// Package storage keeps a persistent log of finished processing jobs.
//
// This package implements a two-tier storage system:
//  1. CSV file for persistence (survives restarts)
//  2. In-memory slice for fast reads
//
// Thread-safety:
//   - All operations are protected by mutex
//   - Safe for concurrent access from multiple goroutines
package storage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"msgdash/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// bufferSize for buffered I/O (64KB)
	bufferSize = 64 * 1024

	timeLayout = time.RFC3339
)

var header = []string{"job_id", "finished_at", "status", "total", "processed", "succeeded", "failed"}

// Record is one finished processing job.
type Record struct {
	ID         string           `json:"id"`
	FinishedAt time.Time        `json:"finished_at"`
	Status     domain.JobStatus `json:"status"`
	Total      int              `json:"total"`
	Processed  int              `json:"processed"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
}

func (r Record) row() []string {
	return []string{
		r.ID,
		r.FinishedAt.UTC().Format(timeLayout),
		string(r.Status),
		strconv.Itoa(r.Total),
		strconv.Itoa(r.Processed),
		strconv.Itoa(r.Succeeded),
		strconv.Itoa(r.Failed),
	}
}

func parseRow(row []string) (Record, error) {
	if len(row) < len(header) {
		return Record{}, errors.New("short row")
	}
	at, err := time.Parse(timeLayout, row[1])
	if err != nil {
		return Record{}, err
	}
	r := Record{ID: row[0], FinishedAt: at, Status: domain.JobStatus(row[2])}
	for i, dst := range []*int{&r.Total, &r.Processed, &r.Succeeded, &r.Failed} {
		if *dst, err = strconv.Atoi(row[3+i]); err != nil {
			return Record{}, err
		}
	}
	return r, nil
}

// Storage provides thread-safe storage for the job log.
//
// Data flow:
//
//	Read:  CSV → Load into memory → Serve from memory
//	Write: Append to CSV → Update memory
//	Clear: Rewrite CSV with header only
//
// An empty path keeps the log in memory only.
type Storage struct {
	mu      sync.Mutex
	path    string
	records []Record
	log     *logrus.Entry
}

// New creates a Storage and loads existing records from path.
func New(path string) *Storage {
	s := &Storage{
		path: path,
		log:  logrus.WithField("component", "storage"),
	}
	if path != "" {
		s.loadFromFile()
	}
	return s
}

// loadFromFile loads the job log from the CSV file into memory.
//
// Error handling:
//   - File not found: Normal on first run
//   - Malformed rows: Skipped with warning
func (s *Storage) loadFromFile() {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Infof("📋 No job history at %s yet", s.path)
		} else {
			s.log.WithError(err).Warn("⚠️  Failed to open job history")
		}
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		s.log.WithError(err).Warn("⚠️  Failed to read job history")
		return
	}

	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == header[0] {
			continue
		}
		r, err := parseRow(row)
		if err != nil {
			s.log.WithError(err).WithField("line", i+1).Warn("⚠️  Skipping malformed job record")
			continue
		}
		s.records = append(s.records, r)
	}

	s.log.Infof("📚 Loaded %d finished jobs from history", len(s.records))
}

// Append records a finished job. The file is written before memory is
// updated, so a failed write leaves both unchanged.
func (s *Storage) Append(status domain.ProcessingStatus, finishedAt time.Time) (Record, error) {
	r := Record{
		ID:         uuid.NewString(),
		FinishedAt: finishedAt.Truncate(time.Second),
		Status:     status.Status,
		Total:      status.Total,
		Processed:  status.Processed,
		Succeeded:  status.Succeeded,
		Failed:     status.Failed,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := s.appendToFile(r); err != nil {
			return Record{}, err
		}
	}
	s.records = append(s.records, r)
	return r, nil
}

func (s *Storage) appendToFile(r Record) error {
	_, statErr := os.Stat(s.path)
	fresh := os.IsNotExist(statErr)

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	bufferedWriter := bufio.NewWriterSize(file, bufferSize)
	writer := csv.NewWriter(bufferedWriter)
	if fresh {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	if err := writer.Write(r.row()); err != nil {
		return err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bufferedWriter.Flush()
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (s *Storage) Recent(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Clone(s.records)
	slices.Reverse(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Len returns the number of recorded jobs.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Clear removes every record.
func (s *Storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := s.rewriteFile(nil); err != nil {
			return err
		}
	}
	s.records = nil
	return nil
}

// rewriteFile replaces the CSV file with records.
//
// Note: Caller must hold the mutex lock
func (s *Storage) rewriteFile(records []Record) error {
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	bufferedWriter := bufio.NewWriterSize(file, bufferSize)
	writer := csv.NewWriter(bufferedWriter)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := writer.Write(r.row()); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bufferedWriter.Flush()
}
