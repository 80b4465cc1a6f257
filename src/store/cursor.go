package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/username/finsync/src/models"
)

// WriteGlobalCursor persists the process-wide watermark with the same
// atomic-replace discipline as partitions.
func (s *Store) WriteGlobalCursor(cursor models.GlobalCursor) error {
	data, err := json.MarshalIndent(cursor, "", "  ")
	if err != nil {
		return fmt.Errorf("encode global cursor: %w", err)
	}
	return writeFileAtomic(s.cursorPath(), data)
}

// ReadGlobalCursor returns the stored watermark, or a zero cursor when
// none has been written yet.
func (s *Store) ReadGlobalCursor() (models.GlobalCursor, error) {
	var cursor models.GlobalCursor
	data, err := os.ReadFile(s.cursorPath())
	if os.IsNotExist(err) {
		return cursor, nil
	}
	if err != nil {
		return cursor, fmt.Errorf("read global cursor: %w", err)
	}
	if err := json.Unmarshal(data, &cursor); err != nil {
		return cursor, fmt.Errorf("decode global cursor: %w", err)
	}
	return cursor, nil
}
