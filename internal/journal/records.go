package journal

import (
	"errors"
	"log/slog"
	"os"
	"time"
)

const (
	// OrganizeLogName is the per-folder organize journal, stored in the
	// managed folder itself.
	OrganizeLogName = "_organize_record.json"

	// DeleteLogName is the per-folder delete journal, stored inside the
	// trash area.
	DeleteLogName = "_delete_record.json"
)

// MovedFile records a single file move within an organize batch.
type MovedFile struct {
	Original string `json:"original"`
	New      string `json:"new"`
}

// OrganizeRecord is one reversible organize batch. Only the most recent
// record can be reverted.
type OrganizeRecord struct {
	ID    string      `json:"id,omitempty"`
	Time  time.Time   `json:"time"`
	Files []MovedFile `json:"files"`
}

// DeleteRecord is one reversible delete batch: the logical name the user
// deleted plus the timestamped paths its files landed on in trash.
type DeleteRecord struct {
	ID           string    `json:"id,omitempty"`
	Time         time.Time `json:"time"`
	OriginalName string    `json:"original_name"`
	TrashFiles   []string  `json:"trash_files"`
}

// OrganizeLog wraps the ordered list of organize records for one folder.
type OrganizeLog struct {
	path  string
	store Store
}

func NewOrganizeLog(path string, store Store) *OrganizeLog {
	return &OrganizeLog{path: path, store: store}
}

// Records returns the log contents oldest-first. A missing or corrupt log
// reads as empty; corruption is logged and effectively disables revert
// until the next successful write.
func (l *OrganizeLog) Records() []OrganizeRecord {
	var records []OrganizeRecord
	if err := l.store.Load(l.path, &records); err != nil {
		if errors.Is(err, ErrCorrupt) {
			slog.Warn("organize journal corrupt, treating as empty", "path", l.path, "error", err)
		} else if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("organize journal unreadable, treating as empty", "path", l.path, "error", err)
		}
		return nil
	}
	return records
}

// Append adds a record to the end of the log.
func (l *OrganizeLog) Append(r OrganizeRecord) error {
	records := append(l.Records(), r)
	return l.store.Save(l.path, records)
}

// Pop removes and returns the most recent record. The write happens before
// the caller acts on the record, making revert at-most-once.
func (l *OrganizeLog) Pop() (OrganizeRecord, bool, error) {
	records := l.Records()
	if len(records) == 0 {
		return OrganizeRecord{}, false, nil
	}
	last := records[len(records)-1]
	if err := l.store.Save(l.path, records[:len(records)-1]); err != nil {
		return OrganizeRecord{}, false, err
	}
	return last, true, nil
}

// DeleteLog wraps the capped, ordered list of delete records for one folder.
type DeleteLog struct {
	path  string
	store Store
	cap   int
}

func NewDeleteLog(path string, store Store, cap int) *DeleteLog {
	return &DeleteLog{path: path, store: store, cap: cap}
}

// Records returns the log contents oldest-first, with the same
// corrupt-reads-as-empty policy as OrganizeLog.
func (l *DeleteLog) Records() []DeleteRecord {
	var records []DeleteRecord
	if err := l.store.Load(l.path, &records); err != nil {
		if errors.Is(err, ErrCorrupt) {
			slog.Warn("delete journal corrupt, treating as empty", "path", l.path, "error", err)
		} else if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("delete journal unreadable, treating as empty", "path", l.path, "error", err)
		}
		return nil
	}
	return records
}

// Append adds a record, dropping the oldest entries beyond the cap.
func (l *DeleteLog) Append(r DeleteRecord) error {
	records := append(l.Records(), r)
	if l.cap > 0 && len(records) > l.cap {
		records = records[len(records)-l.cap:]
	}
	return l.store.Save(l.path, records)
}

// Replace overwrites the whole log, used after a restore removes a record.
func (l *DeleteLog) Replace(records []DeleteRecord) error {
	return l.store.Save(l.path, records)
}
