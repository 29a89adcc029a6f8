// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fiscal

import (
	"bytes"
	"fmt"
	"text/template"
)

// NotFoundMarker is the value the service is told to return for an
// indicator it cannot find.
const NotFoundMarker = "未找到"

// instructionTmpl asks for the indicators of one unit and year as a flat
// JSON object keyed by indicator name, amounts in 万元.
var instructionTmpl = template.Must(template.New("instruction").Parse(`你是财政专家。请从文件中提取{{.Unit}}{{.Year}}年的决算数：
{{range .Indicators}}{{.}}
{{end}}请以JSON格式输出，key为指标名，value为数值(万元)，未找到填"{{.NotFound}}"。`))

// userTmpl is the user turn that triggers the extraction. It is the only
// part of the request kept in the unit's history besides the reply.
var userTmpl = template.Must(template.New("user").Parse(`分析{{.Unit}}{{.Year}}年数据并提取指标。`))

// Request is everything needed to ask the service for one record.
type Request struct {
	Unit       string
	Year       string
	Documents  []Document
	Indicators []string
	NotFound   string
	History    []Message
}

// buildMessages assembles the chat for req: the unit's history, one system
// message per document text, the extraction instruction and the user turn.
// The user turn is also returned on its own so it can be appended to the
// history after a successful reply.
func buildMessages(req Request) ([]Message, Message, error) {
	if req.NotFound == "" {
		req.NotFound = NotFoundMarker
	}

	instruction, err := render(instructionTmpl, req)
	if err != nil {
		return nil, Message{}, fmt.Errorf("rendering instruction: %w", err)
	}
	prompt, err := render(userTmpl, req)
	if err != nil {
		return nil, Message{}, fmt.Errorf("rendering user prompt: %w", err)
	}
	user := Message{Role: RoleUser, Content: prompt}

	msgs := make([]Message, 0, len(req.History)+len(req.Documents)+2)
	msgs = append(msgs, req.History...)
	for _, d := range req.Documents {
		msgs = append(msgs, Message{Role: RoleSystem, Content: d.Text})
	}
	msgs = append(msgs, Message{Role: RoleSystem, Content: instruction}, user)
	return msgs, user, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
