package models

// EmailTemplateSettings holds the sender and template fields used when a
// magic-link email is composed. An empty string means "unset".
type EmailTemplateSettings struct {
	DefaultFrom    string `json:"defaultFrom"`
	DefaultReplyTo string `json:"defaultReplyTo"`
	Subject        string `json:"subject"`
	Text           string `json:"text"`
	HTML           string `json:"html"`
}

// TokenSettings controls the shape and lifetime of issued credentials.
// Zero values are unset and fall through to the next configuration layer.
type TokenSettings struct {
	TTLMinutes  int `json:"ttl"`
	TokenLength int `json:"tokenLength"`
	CodeLength  int `json:"codeLength"`
}
