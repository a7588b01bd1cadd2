package notion

// maxTextLen is Notion's limit for a single rich text content string.
const maxTextLen = 2000

type Block struct {
	Object    string     `json:"object"`
	Type      string     `json:"type"`
	Heading3  *TextBlock `json:"heading_3,omitempty"`
	Paragraph *TextBlock `json:"paragraph,omitempty"`
}

type TextBlock struct {
	RichText []RichText `json:"rich_text"`
}

type RichText struct {
	Type string `json:"type"`
	Text Text   `json:"text"`
}

type Text struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

type Link struct {
	URL string `json:"url"`
}

func Heading3(text string) Block {
	return Block{Object: "block", Type: "heading_3", Heading3: &TextBlock{RichText: richText(text)}}
}

func Paragraph(text string) Block {
	return Block{Object: "block", Type: "paragraph", Paragraph: &TextBlock{RichText: richText(text)}}
}

// LinkParagraph is a paragraph whose whole text links to url.
func LinkParagraph(url string) Block {
	return Block{Object: "block", Type: "paragraph", Paragraph: &TextBlock{RichText: []RichText{
		{Type: "text", Text: Text{Content: url, Link: &Link{URL: url}}},
	}}}
}

// PlainText joins the rich text of a heading or paragraph block.
func (b Block) PlainText() string {
	var tb *TextBlock
	switch {
	case b.Heading3 != nil:
		tb = b.Heading3
	case b.Paragraph != nil:
		tb = b.Paragraph
	default:
		return ""
	}
	s := ""
	for _, rt := range tb.RichText {
		s += rt.Text.Content
	}
	return s
}

func richText(s string) []RichText {
	parts := splitRunes(s, maxTextLen)
	out := make([]RichText, 0, len(parts))
	for _, p := range parts {
		out = append(out, RichText{Type: "text", Text: Text{Content: p}})
	}
	return out
}

func splitRunes(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	var out []string
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
