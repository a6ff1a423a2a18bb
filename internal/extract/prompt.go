package extract

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

// Request is what every backend receives for one extraction.
type Request struct {
	Text   string
	Schema edital.Schema
}

// Prompt renders the instruction sent to hosted language models.
func (r Request) Prompt() string {
	return fmt.Sprintf(`Analise o texto de edital de residência médica abaixo e extraia os dados em JSON.
Campos:
%s
Regras:
1. Se faltar informação, use null.
2. Datas no formato AAAA-MM-DD; taxa como número decimal em reais; vagas como inteiro.
3. "previsto" é false somente quando o texto é o próprio edital oficial: cita um edital numerado
   (ex.: "Edital nº 12/2026") e não contém linguagem especulativa (previsão, rumor, expectativa,
   "deve sair", "saiu o edital"). Notícias, anúncios de normas e previsões são "previsto": true.
4. Retorne APENAS o JSON.

Texto:
%s`, r.Schema.Describe(), r.Text)
}

// ResponseSchema returns the JSON Schema used to constrain structured output.
func (r Request) ResponseSchema() (json.RawMessage, error) {
	return r.Schema.JSONSchema()
}
