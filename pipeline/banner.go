package pipeline

import (
	"fmt"
	"io"
	"strings"
)

var bannerRule = strings.Repeat("/", 80)

// Banner prints the section headers that separate the pipeline steps in the
// operator's terminal.
type Banner struct {
	Out    io.Writer
	Prefix string
}

func (b *Banner) Print(title string) {
	if b == nil || b.Out == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(bannerRule + "\n")
	if b.Prefix != "" {
		sb.WriteString("  " + b.Prefix + "\n")
	}
	sb.WriteString("  " + strings.ToUpper(title) + "\n")
	sb.WriteString(bannerRule + "\n\n")

	_, _ = fmt.Fprint(b.Out, sb.String())
}
