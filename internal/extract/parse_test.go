package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

func TestParseStructuredJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose", input: "Aqui está:\n{\"a\":1}\nObrigado.", want: `{"a":1}`},
		{name: "empty", input: "   ", wantErr: true},
		{name: "array", input: `[1,2]`, wantErr: true},
		{name: "garbage", input: "sem json", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseStructuredJSON(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, errUnparseable)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestValidatorDecode(t *testing.T) {
	t.Parallel()

	v := newValidator()
	schema := edital.DefaultSchema()

	rec, err := v.decode(schema, []byte(`{"instituicao":" USP ","especialidade":"Pediatria","vagas":12,"previsto":false,"estado":"SP"}`))
	require.NoError(t, err)
	assert.Equal(t, "USP", rec.Institution)
	require.NotNil(t, rec.Vacancies)
	assert.Equal(t, 12, *rec.Vacancies)
	require.NotNil(t, rec.State)
	assert.Equal(t, "SP", *rec.State)
	assert.False(t, rec.Projected)
	assert.Nil(t, rec.ExamDate)

	for name, doc := range map[string]string{
		"missing previsto": `{"instituicao":"USP","especialidade":"Pediatria"}`,
		"null previsto":    `{"instituicao":"USP","especialidade":"Pediatria","previsto":null}`,
		"string vagas":     `{"instituicao":"USP","especialidade":"Pediatria","previsto":true,"vagas":"doze"}`,
		"fractional vagas": `{"instituicao":"USP","especialidade":"Pediatria","previsto":true,"vagas":1.5}`,
		"bad date":         `{"instituicao":"USP","especialidade":"Pediatria","previsto":true,"dataProva":"2026-13-45"}`,
		"empty key":        `{"instituicao":"","especialidade":"Pediatria","previsto":true}`,
	} {
		_, err := v.decode(schema, []byte(doc))
		assert.ErrorIs(t, err, ErrSchemaViolation, name)
	}
}

func TestValidatorCachesCompiledSchema(t *testing.T) {
	t.Parallel()

	v := newValidator()
	first, err := v.compile(edital.DefaultSchema())
	require.NoError(t, err)
	second, err := v.compile(edital.DefaultSchema())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, v.compiled, 1)
}

func TestRequestPromptListsFields(t *testing.T) {
	t.Parallel()

	req := Request{Text: "Edital ENARE 2026", Schema: edital.DefaultSchema()}
	prompt := req.Prompt()
	assert.Contains(t, prompt, "instituicao")
	assert.Contains(t, prompt, "previsto")
	assert.Contains(t, prompt, "Edital ENARE 2026")

	raw, err := req.ResponseSchema()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"dataProva"`)
}
