package answer

import (
	"fmt"
	"strings"
)

// AnswerSystemPrompt instructs the model to answer strictly from the
// provided excerpts and to cite article numbers.
const AnswerSystemPrompt = `당신은 사내 규정 문서를 근거로 질문에 답하는 도우미입니다.

규칙:
- 아래 제공된 규정 발췌에 있는 내용만 근거로 답하십시오.
- 발췌에 없는 내용은 추측하지 말고 "제공된 규정에서 해당 내용을 찾을 수 없습니다"라고 답하십시오.
- 답변의 근거가 된 조항 번호(예: 제15조)를 함께 인용하십시오.
- 표가 포함된 경우 표의 수치를 그대로 옮기십시오.
- 간결하게 답하십시오.`

// ContextBlock is one retrieved chunk prepared for the prompt: a
// header locating it in the document, the chunk text, and any table
// renders it references.
type ContextBlock struct {
	DocTitle string
	Path     string
	Label    string // "i/total"
	Body     string
	Tables   []string
}

// Header renders the block's source line.
func (b ContextBlock) Header(n int) string {
	parts := []string{fmt.Sprintf("발췌 %d", n), b.DocTitle}
	if b.Path != "" {
		parts = append(parts, b.Path)
	}
	parts = append(parts, "조각 "+b.Label)
	return "[" + strings.Join(parts, " | ") + "]"
}

// BuildAnswerPrompt assembles the user message: numbered excerpts with
// their location headers and table renders, followed by the question.
func BuildAnswerPrompt(query string, blocks []ContextBlock) string {
	var sb strings.Builder
	sb.WriteString("다음은 질문과 관련된 규정 발췌입니다.\n")
	for i, b := range blocks {
		sb.WriteString("\n")
		sb.WriteString(b.Header(i + 1))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(b.Body))
		sb.WriteString("\n")
		for _, t := range b.Tables {
			sb.WriteString("\n")
			sb.WriteString(strings.TrimSpace(t))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n---\n질문: ")
	sb.WriteString(query)
	return sb.String()
}
