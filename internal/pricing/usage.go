package pricing

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// UsageRecord is one line of the JSONL usage log an adapter writes.
type UsageRecord struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// ParseUsageLog reads a JSONL usage log. Lines that are not JSON or carry
// no model are skipped. A missing file is not an error.
func ParseUsageLog(path string) ([]UsageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading usage log: %w", err)
	}
	return ParseUsage(data)
}

func ParseUsage(data []byte) ([]UsageRecord, error) {
	var records []UsageRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec UsageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Model != "" {
			records = append(records, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning usage log: %w", err)
	}
	return records, nil
}

func TotalUsage(records []UsageRecord) (inputTokens, outputTokens int) {
	for _, r := range records {
		inputTokens += r.InputTokens
		outputTokens += r.OutputTokens
	}
	return
}
