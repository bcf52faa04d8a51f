package card

// Link is a labelled URL shown on the help card.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Help is a static welcome card pointing users at documentation.
type Help struct {
	*Base
}

// NewHelp creates a help card.
func NewHelp(title, body string, links ...Link) *Help {
	if links == nil {
		links = []Link{}
	}
	h := &Help{Base: New("Help")}
	h.WithTitle(title).
		WithWidth("full").
		WithMeta(map[string]any{
			"body":  body,
			"links": links,
		})
	return h
}
