package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// sumBody is the optional JSON body for the sum endpoint. Values arrive as
// strings for parity with query parameters.
type sumBody struct {
	FirstVal  string `json:"firstVal"`
	SecondVal string `json:"secondVal"`
}

// SumResponse is the response payload for the sum endpoint.
type SumResponse struct {
	Sum int `json:"sum"`
}

// SumHandler handles GET|POST /api/sum. Each operand comes from the query
// string, falling back to the JSON body, and must fit in 16 bits.
func SumHandler(w http.ResponseWriter, r *http.Request) {
	first := r.URL.Query().Get("firstVal")
	second := r.URL.Query().Get("secondVal")

	if r.Method == http.MethodPost && (first == "" || second == "") {
		var body sumBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid JSON body")
			return
		}
		if first == "" {
			first = body.FirstVal
		}
		if second == "" {
			second = body.SecondVal
		}
	}

	a, err := parseInt16(first)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ReasonInvalidArgument, fmt.Sprintf("firstVal: %v", err))
		return
	}
	b, err := parseInt16(second)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ReasonInvalidArgument, fmt.Sprintf("secondVal: %v", err))
		return
	}

	WriteSuccess(w, SumResponse{Sum: int(a) + int(b)})
}

func parseInt16(s string) (int16, error) {
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	v, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("not a 16-bit integer: %q", s)
	}
	return int16(v), nil
}
