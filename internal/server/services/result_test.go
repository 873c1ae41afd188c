package services

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestSuccessEnvelope(t *testing.T) {
	tests := []struct {
		name string
		r    *Result
		want string
	}{
		{"nil data", Success(nil), `{"success":true,"data":{}}`},
		{"string data doubles as message", Success("done"), `{"success":true,"data":"done","message":"done"}`},
		{"explicit message", Success(map[string]int{"a": 1}).WithMessage("ok"), `{"success":true,"data":{"a":1},"message":"ok"}`},
		{
			"pagination",
			Success([]int{1, 2}).WithPagination(NewPagination(1, 2, 5)),
			`{"success":true,"data":[1,2],"pagination":{"page":1,"per_page":2,"total":5,"pages":3}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, tt.r.Status)
			assert.JSONEq(t, tt.want, marshal(t, tt.r))
		})
	}
}

func TestFailureEnvelope(t *testing.T) {
	r := Failure(http.StatusBadRequest, "ExpiredPasswordError", map[string]int{"remaining_days": 1})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.JSONEq(t,
		`{"success":false,"error":{"message":"ExpiredPasswordError","payload":{"remaining_days":1}}}`,
		marshal(t, r))

	for _, status := range []int{400, 401, 403, 404, 429, 500} {
		r := Failure(status, "", nil)
		assert.NotEmpty(t, r.Error.Message)
		assert.NotEqual(t, "Error", r.Error.Message, "status %d has a default message", status)
		assert.Contains(t, marshal(t, r), `"payload":null`)
	}
	assert.Equal(t, "Error", Failure(418, "", nil).Error.Message)
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, 0, NewPagination(1, 10, 0).Pages)
	assert.Equal(t, 1, NewPagination(1, 10, 10).Pages)
	assert.Equal(t, 2, NewPagination(1, 10, 11).Pages)
	assert.Equal(t, 0, NewPagination(1, 0, 11).Pages)
}
