package pkg

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPIsLocal(t *testing.T) {
	cases := []struct {
		addr            string
		expectedIsLocal bool
	}{
		{addr: "83.12.53.65:2145", expectedIsLocal: false},
		{addr: "127.23.0.1:35325", expectedIsLocal: false},
		{addr: "127.0.0.1:35325", expectedIsLocal: true},
		{addr: "[::1]:35325", expectedIsLocal: true},
		{addr: "172.20.0.1:60102", expectedIsLocal: true},
		{addr: "172.19.0.1:42452", expectedIsLocal: true},
		{addr: "172.0.0.1", expectedIsLocal: true},
		{addr: "172.19.1.1:42452", expectedIsLocal: false},
		{addr: "111.12.56.65:8080", expectedIsLocal: false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expectedIsLocal, IPIsLocal(tc.addr), tc.addr)
	}
}

func TestReadUserIP(t *testing.T) {
	cases := map[string]struct {
		remoteAddr    string
		realIP        string
		forwardedFor  string
		expectedIP    string
		expectedError bool
	}{
		"remote addr with port": {
			remoteAddr: "83.12.53.65:2145",
			expectedIP: "83.12.53.65",
		},
		"real ip header wins": {
			remoteAddr: "83.12.53.65:2145",
			realIP:     "91.1.2.3",
			expectedIP: "91.1.2.3",
		},
		"forwarded for, first entry": {
			remoteAddr:   "83.12.53.65:2145",
			forwardedFor: "91.1.2.3, 10.0.0.1",
			expectedIP:   "91.1.2.3",
		},
		"local": {
			remoteAddr: "127.0.0.1:5000",
			expectedIP: "localhost",
		},
		"garbage": {
			remoteAddr:    "not-an-ip",
			expectedError: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.realIP != "" {
				req.Header.Set("X-Real-Ip", tc.realIP)
			}
			if tc.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tc.forwardedFor)
			}

			ip, err := ReadUserIP(req)
			if tc.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedIP, ip)
		})
	}
}
