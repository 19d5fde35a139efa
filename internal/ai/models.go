package ai

// SiteRequest carries the waypoint facts the narration is grounded on.
type SiteRequest struct {
	// Name is the waypoint's English display name.
	Name string

	// NameLocal is the site's name in the local language, when known.
	NameLocal string

	// Description is the catalog's factual blurb; the model must not invent
	// history beyond it.
	Description string

	// Language is the BCP 47 tag the narration should be written in
	// (e.g. "zh-TW", "en"). Empty defaults to zh-TW.
	Language string
}

// SiteIntro captures the structured narration returned by the AI model.
type SiteIntro struct {
	// Title is a short headline for the narration card.
	Title string `json:"title"`

	// Body is the 2-3 paragraph spoken-guide introduction.
	Body string `json:"body"`

	// Etiquette lists do's and don'ts for visiting the site respectfully.
	Etiquette string `json:"etiquette"`
}
