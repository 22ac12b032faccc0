package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

var exportHeader = []string{"id", "at", "actor", "action", "entity_type", "entity_id", "ip_address", "details"}

// WriteCSV encodes rows with a header line.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.ID, 10),
			r.At.UTC().Format(time.RFC3339),
			r.ActorLabel(),
			r.Action,
			r.EntityType,
			r.EntityID,
			r.IPAddress,
			r.Details,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
