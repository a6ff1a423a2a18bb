// Package rules is a deterministic, offline extraction backend. It recognises
// the phrasing Brazilian residency notices and news items tend to use and
// produces the same JSON a hosted model would.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/extract"
)

// Version is the only model name this backend answers to.
const Version = "v1"

var (
	reVacancies   = regexp.MustCompile(`(?i)(\d+)\s+vagas`)
	reSpecialty   = regexp.MustCompile(`(?i:vagas\s+(?:para|de|em))\s+(\p{Lu}\p{L}*(?:[ \t]+\p{Lu}\p{L}*)*)`)
	reInstitution = regexp.MustCompile(`(?i:edital(?:\s+n[º°o.]*\s*[\d/]+)?\s+d[oae]s?)\s+(\p{Lu}[\p{L}\p{N}]*)`)
	reDate        = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	reFee         = regexp.MustCompile(`R\$\s*([\d.]+,\d{2})`)
	reState       = regexp.MustCompile(`\b(AC|AL|AP|AM|BA|CE|DF|ES|GO|MA|MT|MS|MG|PA|PB|PR|PE|PI|RJ|RN|RS|RO|RR|SC|SP|SE|TO)\b`)
	reCity        = regexp.MustCompile(`(?i:cidade\s+de)\s+(\p{Lu}\p{L}+(?:[ \t]+(?:d[aeo]s?[ \t]+)?\p{Lu}\p{L}+)*)`)
	reLink        = regexp.MustCompile(`https?://[^\s"'<>]+`)
	reNumbered    = regexp.MustCompile(`(?i)edital\s+n[º°o.]*\s*\d+`)
	reSentence    = regexp.MustCompile(`[\n!?]+|\.\s`)
)

var speculativeMarkers = []string{
	"previsão",
	"previsto",
	"prevista",
	"rumor",
	"expectativa",
	"deve sair",
	"saiu o edital",
	"urgente",
}

// Backend extracts edital fields with regular expressions.
type Backend struct{}

// New returns the rules backend.
func New() *Backend {
	return &Backend{}
}

// Invoke implements extract.BackendInvoker.
func (b *Backend) Invoke(ctx context.Context, model string, req extract.Request) (string, error) {
	if model != Version {
		return "", extract.NotFoundError(model, fmt.Errorf("rules backend only serves %q", Version))
	}
	if err := ctx.Err(); err != nil {
		return "", extract.OtherError(model, err)
	}
	doc := Extract(req.Text)
	out := make(map[string]any, len(req.Schema.Fields))
	for _, f := range req.Schema.Fields {
		v, ok := doc[f.Name]
		if !ok {
			v = nil
		}
		out[f.Name] = v
	}
	body, err := json.Marshal(out)
	if err != nil {
		return "", extract.OtherError(model, err)
	}
	return string(body), nil
}

// Extract maps text onto the default schema's field names. Fields it cannot
// find are nil.
func Extract(text string) map[string]any {
	doc := map[string]any{
		"instituicao":     firstGroup(reInstitution, text),
		"especialidade":   firstGroup(reSpecialty, text),
		"estado":          nullable(firstGroup(reState, text)),
		"cidade":          nullable(firstGroup(reCity, text)),
		"vagas":           nil,
		"inicioInscricao": nil,
		"fimInscricao":    nil,
		"dataProva":       nil,
		"taxa":            nil,
		"link":            nullable(reLink.FindString(text)),
		"previsto":        Projected(text),
	}
	if m := reVacancies.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			doc["vagas"] = n
		}
	}
	if m := reFee.FindStringSubmatch(text); m != nil {
		normalized := strings.ReplaceAll(strings.ReplaceAll(m[1], ".", ""), ",", ".")
		if fee, err := strconv.ParseFloat(normalized, 64); err == nil {
			doc["taxa"] = fee
		}
	}

	for _, sentence := range reSentence.Split(text, -1) {
		lower := strings.ToLower(sentence)
		dates := findDates(sentence)
		switch {
		case strings.Contains(lower, "inscri") && len(dates) > 0 &&
			doc["inicioInscricao"] == nil && doc["fimInscricao"] == nil:
			switch {
			case len(dates) > 1:
				doc["inicioInscricao"] = dates[0]
				doc["fimInscricao"] = dates[1]
			case closesRegistration(lower):
				doc["fimInscricao"] = dates[0]
			default:
				doc["inicioInscricao"] = dates[0]
			}
		case strings.Contains(lower, "prova") && len(dates) > 0 && doc["dataProva"] == nil:
			doc["dataProva"] = dates[0]
		}
	}
	return doc
}

// Projected reports whether text reads as news or a forecast rather than the
// notice itself. Only a numbered edital without speculative wording is final.
func Projected(text string) bool {
	if !reNumbered.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, marker := range speculativeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// closesRegistration reports whether a sentence with one date names the
// deadline rather than the opening day.
func closesRegistration(lower string) bool {
	for _, marker := range []string{"até", "encerra", "termina", "prazo final", "último dia"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func findDates(s string) []string {
	var out []string
	for _, m := range reDate.FindAllStringSubmatch(s, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// Reject rollovers such as 31/02.
		if t.Day() != day || int(t.Month()) != month {
			continue
		}
		out = append(out, t.Format(edital.DateLayout))
	}
	return out
}

func firstGroup(re *regexp.Regexp, text string) any {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return strings.TrimSpace(m[1])
}

func nullable(v any) any {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}
