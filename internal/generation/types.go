package generation

// ImagePayload is one inline image attached to a generation request.
type ImagePayload struct {
	MimeType string
	Data     []byte
}

// Result is the normalized output of a generation call, regardless of
// which response shape the provider produced.
type Result struct {
	MimeType string
	Data     []byte
}

// Request/response wire types. The provider accepts a prompt part followed
// by inline image parts and answers with candidate parts carrying the
// generated image either under "inlineData" or "inline_data".

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content candidateContent `json:"content"`
}

type candidateContent struct {
	Parts []responsePart `json:"parts"`
}

type responsePart struct {
	Text            string          `json:"text,omitempty"`
	InlineData      *inlineDataResp `json:"inlineData,omitempty"`
	InlineDataSnake *inlineDataResp `json:"inline_data,omitempty"`
}

type inlineDataResp struct {
	MimeType      string `json:"mimeType,omitempty"`
	MimeTypeSnake string `json:"mime_type,omitempty"`
	Data          string `json:"data"`
}

func (d *inlineDataResp) mimeType() string {
	if d.MimeType != "" {
		return d.MimeType
	}
	return d.MimeTypeSnake
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
