// Package normalize maps producer records of any release onto the canonical
// telemetry row.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/okian/trialstats/internal/domain/model"
)

// aliases maps keys used by earlier producer releases to canonical fields.
// Keys are already in canonical (snake_case, lower) form.
var aliases = map[string]string{
	"user":       model.UserID,
	"uid":        model.UserID,
	"device":     model.DeviceType,
	"platform":   model.DeviceType,
	"level":      model.LevelName,
	"rt":         model.ReactionTime,
	"result":     model.Result,
	"grid":       model.GridIndex,
	"target":     model.TargetIndex,
	"trial":      model.TrialNo,
	"trial_num":  model.TrialNo,
	"task":       model.TaskType,
	"appeartime": model.AppearTime,
}

// Row builds the canonical row for an incoming field mapping. Every canonical
// field is present in the output; absent fields are "". Unknown keys are
// discarded. The function is pure.
func Row(in map[string]any) model.Row {
	row := make(model.Row, model.FieldCount())
	// 2 = literal canonical key, 1 = matched after canonicalization.
	rank := make([]int, model.FieldCount())

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		idx, prio, ok := resolve(k)
		if !ok || prio <= rank[idx] {
			continue
		}
		rank[idx] = prio
		row[idx] = Stringify(in[k])
	}
	return row
}

func resolve(key string) (int, int, bool) {
	if i, ok := model.Index(key); ok {
		return i, 2, true
	}
	c := CanonicalKey(key)
	if target, ok := aliases[c]; ok {
		c = target
	}
	if i, ok := model.Index(c); ok {
		return i, 1, true
	}
	return 0, 0, false
}

// CanonicalKey converts a producer key to snake_case: "levelName",
// "LevelName", " level-name " all become "level_name".
func CanonicalKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Stringify renders a decoded JSON value the way it is stored. Numeric zero
// renders as "0"; nil renders as "".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
