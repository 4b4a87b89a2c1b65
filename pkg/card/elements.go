package card

// Element is one node of the card JSON (schema 2.0).
type Element map[string]any

// Option is one choice of a select element.
type Option struct {
	Label string
	Value string
}

func plainText(content string) map[string]any {
	return map[string]any{"tag": "plain_text", "content": content}
}

func Markdown(content string) Element {
	return Element{"tag": "markdown", "content": content}
}

func Hr() Element {
	return Element{"tag": "hr"}
}

// Button renders a callback button. style is one of default, primary,
// danger, primary_filled, laser.
func Button(text, style string, value map[string]any) Element {
	if style == "" {
		style = "default"
	}
	return Element{
		"tag":  "button",
		"text": plainText(text),
		"type": style,
		"behaviors": []any{
			map[string]any{"type": "callback", "value": value},
		},
	}
}

// DisabledButton renders a button that cannot fire callbacks.
func DisabledButton(text string) Element {
	return Element{"tag": "button", "text": plainText(text), "type": "default", "disabled": true}
}

// Input renders a single-line text input whose submitted text arrives as
// input_value.
func Input(name, placeholder, initial string, value map[string]any) Element {
	el := Element{
		"tag":         "input",
		"name":        name,
		"placeholder": plainText(placeholder),
		"behaviors": []any{
			map[string]any{"type": "callback", "value": value},
		},
	}
	if initial != "" {
		el["default_value"] = initial
	}
	return el
}

func SelectStatic(placeholder string, options []Option, initial string, value map[string]any) Element {
	opts := make([]any, 0, len(options))
	for _, opt := range options {
		opts = append(opts, map[string]any{"text": plainText(opt.Label), "value": opt.Value})
	}
	el := Element{
		"tag":         "select_static",
		"placeholder": plainText(placeholder),
		"options":     opts,
		"behaviors": []any{
			map[string]any{"type": "callback", "value": value},
		},
	}
	if initial != "" {
		el["initial_option"] = initial
	}
	return el
}

// PickerDatetime renders a date-time picker; initial uses "2006-01-02 15:04".
func PickerDatetime(placeholder, initial string, value map[string]any) Element {
	el := Element{
		"tag":         "picker_datetime",
		"placeholder": plainText(placeholder),
		"behaviors": []any{
			map[string]any{"type": "callback", "value": value},
		},
	}
	if initial != "" {
		el["initial_datetime"] = initial
	}
	return el
}

// Column is one column of a column set.
func Column(weight int, elements ...Element) Element {
	if weight <= 0 {
		weight = 1
	}
	return Element{
		"tag":            "column",
		"width":          "weighted",
		"weight":         weight,
		"vertical_align": "center",
		"elements":       elementList(elements),
	}
}

func ColumnSet(columns ...Element) Element {
	return Element{
		"tag":                "column_set",
		"flex_mode":          "none",
		"horizontal_spacing": "default",
		"columns":            elementList(columns),
	}
}

func CollapsiblePanel(title string, expanded bool, elements ...Element) Element {
	return Element{
		"tag":      "collapsible_panel",
		"expanded": expanded,
		"header": map[string]any{
			"title": map[string]any{"tag": "markdown", "content": title},
		},
		"elements": elementList(elements),
	}
}

func elementList(elements []Element) []any {
	out := make([]any, 0, len(elements))
	for _, el := range elements {
		out = append(out, map[string]any(el))
	}
	return out
}

// Header templates.
const (
	TemplateBlue   = "blue"
	TemplateGreen  = "green"
	TemplateGrey   = "grey"
	TemplateOrange = "orange"
	TemplateRed    = "red"
	TemplateViolet = "violet"
)

// Document assembles a complete card JSON object.
func Document(title, subtitle, template string, elements []Element) map[string]any {
	header := map[string]any{
		"title":    plainText(title),
		"template": template,
	}
	if subtitle != "" {
		header["subtitle"] = plainText(subtitle)
	}
	return map[string]any{
		"schema": "2.0",
		"config": map[string]any{"update_multi": true},
		"header": header,
		"body":   map[string]any{"elements": elementList(elements)},
	}
}
