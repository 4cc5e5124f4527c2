package apify

import (
	"bytes"
	"encoding/json"

	"github.com/hitoshi/jobmapper/internal/model"
)

// DecodeRecords はレスポンスボディを生レコードの列に変換する。
//
// JSON配列の場合はそのままデコードし、オブジェクト以外の要素は読み飛ばす。
// それ以外は NDJSON として1行ずつデコードし、空行と解析できない行は読み飛ばす。
// skipped は読み飛ばした要素・行の数。
//
// 1件も解析できなかった場合は ErrDecode、解析できたがオブジェクトが0件の場合は
// ErrEmptyDataset を返す。
func DecodeRecords(body []byte) (records []model.RawJobRecord, skipped int, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, 0, &FetchError{Kind: ErrEmptyDataset}
	}

	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if jsonErr := json.Unmarshal(trimmed, &elems); jsonErr == nil {
			records, skipped = decodeObjects(elems)
			if len(records) == 0 {
				return nil, skipped, &FetchError{Kind: ErrEmptyDataset}
			}
			return records, skipped, nil
		}
		// 壊れた配列は行単位の解析にフォールバックする
	}

	parsedAny := false
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec model.RawJobRecord
		if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil || rec == nil {
			skipped++
			continue
		}
		parsedAny = true
		records = append(records, rec)
	}

	if !parsedAny {
		return nil, skipped, &FetchError{Kind: ErrDecode}
	}
	return records, skipped, nil
}

func decodeObjects(elems []json.RawMessage) ([]model.RawJobRecord, int) {
	records := make([]model.RawJobRecord, 0, len(elems))
	skipped := 0
	for _, elem := range elems {
		var rec model.RawJobRecord
		if err := json.Unmarshal(elem, &rec); err != nil || rec == nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}
