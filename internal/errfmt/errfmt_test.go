package errfmt

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single-quoted payload",
			in:   "429 RESOURCE_EXHAUSTED. {'error': {'message': 'quota hit'}}",
			want: "429 RESOURCE_EXHAUSTED. quota hit",
		},
		{
			name: "json payload",
			in:   `503 UNAVAILABLE. {"error": {"message": "The model is overloaded.", "status": "UNAVAILABLE"}}`,
			want: "503 UNAVAILABLE. The model is overloaded.",
		},
		{
			name: "multiline payload",
			in:   "400 INVALID_ARGUMENT. {\"error\": {\"message\": \"bad\\nrequest\"}}",
			want: "400 INVALID_ARGUMENT. bad\nrequest",
		},
		{
			name: "error without message",
			in:   `500 INTERNAL. {"error": {"code": 500}}`,
			want: "500 INTERNAL. Unknown error",
		},
		{
			name: "payload without error key",
			in:   `404 NOT_FOUND. {"detail": "gone"}`,
			want: `404 NOT_FOUND. {"detail": "gone"}`,
		},
		{
			name: "malformed payload",
			in:   "429 RESOURCE_EXHAUSTED. not a dict at all",
			want: "429 RESOURCE_EXHAUSTED. not a dict at all",
		},
		{
			name: "no status line",
			in:   "connection reset by peer",
			want: "connection reset by peer",
		},
		{
			name: "lowercase status token",
			in:   "429 resource_exhausted. {'error': {'message': 'x'}}",
			want: "429 resource_exhausted. {'error': {'message': 'x'}}",
		},
		{
			name: "empty string",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
