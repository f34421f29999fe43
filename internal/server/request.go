package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// maxRequestBytes bounds create and join bodies, which carry only short
// strings.
const maxRequestBytes = 64 << 10

type CreateChannelRequest struct {
	ChannelID string `json:"channelId" validate:"required"`
	Question  string `json:"question" validate:"required"`
	Answer    string `json:"answer" validate:"required"`
}

func (req *CreateChannelRequest) fromForm(form url.Values) {
	req.ChannelID = form.Get("channelId")
	req.Question = form.Get("question")
	req.Answer = form.Get("answer")
}

// JoinRequest without an answer asks for the channel's question.
type JoinRequest struct {
	Answer string `json:"answer"`
}

func (req *JoinRequest) fromForm(form url.Values) {
	req.Answer = form.Get("answer")
}

type SubscriberResponse struct {
	Status       int    `json:"status"`
	SubscriberID string `json:"subscriberId"`
}

type QuestionResponse struct {
	Status   int    `json:"status"`
	Question string `json:"question"`
}

type PublishResponse struct {
	Status    int `json:"status"`
	Delivered int `json:"delivered"`
}

type ErrorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

type formRequest interface {
	fromForm(url.Values)
}

// decodeRequest reads a JSON body when the client says so and a
// url-encoded form otherwise. An empty body decodes to the zero request.
func decodeRequest(w http.ResponseWriter, r *http.Request, req formRequest) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(req)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if err := r.ParseForm(); err != nil {
		return err
	}
	req.fromForm(r.PostForm)
	return nil
}
