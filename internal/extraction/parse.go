package extraction

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// ErrNoExtraction indicates model output held no usable JSON object.
var ErrNoExtraction = errors.New("no extraction in model output")

const defaultModelSummary = "Extracted from voice note"

// embeddedObject returns the text between the first '{' and the last '}'.
func embeddedObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// ParseModelOutput decodes the JSON object embedded in raw model output.
// Completions are kept only when they name an ID in known. Output without a
// valid object, or whose object yields no entities, returns ErrNoExtraction.
func ParseModelOutput(raw string, known map[string]bool) (entity.ExtractionResult, error) {
	obj, ok := embeddedObject(raw)
	if !ok || !gjson.Valid(obj) {
		return entity.ExtractionResult{}, ErrNoExtraction
	}
	doc := gjson.Parse(obj)

	list := doc.Get("entities")
	if !list.IsArray() {
		return entity.ExtractionResult{}, ErrNoExtraction
	}

	var entities []entity.ExtractedEntity
	list.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		content := strings.TrimSpace(item.Get("content").String())
		if content == "" {
			return true
		}
		t, err := entity.ParseType(item.Get("type").String())
		if err != nil {
			t = entity.TypeNote
		}
		meta, _ := item.Get("metadata").Value().(map[string]any)
		if meta == nil {
			meta = map[string]any{}
		}
		entities = append(entities, entity.ExtractedEntity{Type: t, Content: content, Metadata: meta})
		return true
	})
	if len(entities) == 0 {
		return entity.ExtractionResult{}, ErrNoExtraction
	}

	var reported []entity.CompletionMatch
	doc.Get("completions").ForEach(func(_, item gjson.Result) bool {
		id := item.Get("entityId")
		if !id.Exists() {
			id = item.Get("entity_id")
		}
		reported = append(reported, entity.CompletionMatch{
			EntityID:   id.String(),
			Confidence: item.Get("confidence").Float(),
			Reason:     item.Get("reason").String(),
		})
		return true
	})

	summary := strings.TrimSpace(doc.Get("summary").String())
	if summary == "" {
		summary = defaultModelSummary
	}

	return entity.ExtractionResult{
		Entities:    entities,
		Completions: restrictCompletions(reported, known),
		Summary:     summary,
	}, nil
}
