package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spherical/paper-extractor/internal/domain"
)

// stripCodeFences removes ```json / ``` wrapping around a response.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl != -1 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}

	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}

	return strings.TrimSpace(s)
}

// findFirstJSON returns the first balanced {...} object in s, skipping braces
// inside string literals.
func findFirstJSON(s string) string {
	start, depth := -1, 0
	inString, escaped := false, false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start != -1 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// decodeObject normalizes raw model output and decodes it into v.
func decodeObject(raw string, v interface{}) error {
	text := stripCodeFences(raw)
	if text == "" {
		return domain.ExtractionParseError("empty response", nil)
	}

	err := strictUnmarshal(text, v)
	if err == nil {
		return nil
	}

	if obj := findFirstJSON(text); obj != "" && obj != text {
		if err2 := strictUnmarshal(obj, v); err2 == nil {
			return nil
		}
	}
	return domain.ExtractionParseError("response is not valid JSON", err)
}

func strictUnmarshal(text string, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	return dec.Decode(v)
}

type pageResponse struct {
	Markdown *string           `json:"markdown"`
	Figures  []json.RawMessage `json:"figures"`
}

type figureResponse struct {
	YMin  *json.Number `json:"ymin"`
	XMin  *json.Number `json:"xmin"`
	YMax  *json.Number `json:"ymax"`
	XMax  *json.Number `json:"xmax"`
	Label string       `json:"label"`
}

// parsePageContent validates a page response. Any structural problem is a
// parse error; boxes that violate the coordinate invariant are kept as-is.
func parsePageContent(raw string) (domain.PageContent, error) {
	var resp pageResponse
	if err := decodeObject(raw, &resp); err != nil {
		return domain.PageContent{}, err
	}
	if resp.Markdown == nil {
		return domain.PageContent{}, domain.ExtractionParseError("response has no markdown field", nil)
	}

	figures := make([]domain.BoundingBox, 0, len(resp.Figures))
	for i, rawFig := range resp.Figures {
		var fig figureResponse
		if err := json.Unmarshal(rawFig, &fig); err != nil {
			return domain.PageContent{}, domain.ExtractionParseError(fmt.Sprintf("figure %d is malformed", i), err)
		}
		box, err := fig.toBox()
		if err != nil {
			return domain.PageContent{}, domain.ExtractionParseError(fmt.Sprintf("figure %d", i), err)
		}
		figures = append(figures, box)
	}

	return domain.PageContent{Markdown: *resp.Markdown, Figures: figures}, nil
}

func (f figureResponse) toBox() (domain.BoundingBox, error) {
	coords := []struct {
		name string
		val  *json.Number
	}{{"ymin", f.YMin}, {"xmin", f.XMin}, {"ymax", f.YMax}, {"xmax", f.XMax}}

	out := make([]int, len(coords))
	for i, c := range coords {
		if c.val == nil {
			return domain.BoundingBox{}, fmt.Errorf("missing %s", c.name)
		}
		n, err := toInt(*c.val)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("%s: %w", c.name, err)
		}
		out[i] = n
	}

	return domain.BoundingBox{
		YMin:  out[0],
		XMin:  out[1],
		YMax:  out[2],
		XMax:  out[3],
		Label: strings.TrimSpace(f.Label),
	}, nil
}

// toInt accepts integral and fractional numbers; fractions are rounded.
func toInt(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", n.String())
	}
	return int(math.Round(f)), nil
}

type chemistryResponse struct {
	SMILES     *string `json:"smiles"`
	Confidence *string `json:"confidence"`
}

// parseChemicalResult validates a chemistry response.
func parseChemicalResult(raw string) (domain.ChemicalResult, error) {
	var resp chemistryResponse
	if err := decodeObject(raw, &resp); err != nil {
		return domain.ChemicalResult{}, err
	}
	if resp.SMILES == nil || strings.TrimSpace(*resp.SMILES) == "" {
		return domain.ChemicalResult{}, domain.ExtractionParseError("response has no smiles", nil)
	}
	if resp.Confidence == nil {
		return domain.ChemicalResult{}, domain.ExtractionParseError("response has no confidence", nil)
	}

	confidence, ok := normalizeConfidence(*resp.Confidence)
	if !ok {
		return domain.ChemicalResult{}, domain.ExtractionParseError(fmt.Sprintf("unknown confidence %q", *resp.Confidence), nil)
	}

	return domain.ChemicalResult{SMILES: strings.TrimSpace(*resp.SMILES), Confidence: confidence}, nil
}

// normalizeConfidence maps free-form labels such as "high" or "Medium - the
// ring is partially occluded" onto the three canonical labels.
func normalizeConfidence(s string) (string, bool) {
	word := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexFunc(word, func(r rune) bool { return r < 'a' || r > 'z' }); i >= 0 {
		word = word[:i]
	}
	switch word {
	case "high":
		return domain.ConfidenceHigh, true
	case "medium", "moderate":
		return domain.ConfidenceMedium, true
	case "low":
		return domain.ConfidenceLow, true
	}
	return "", false
}
