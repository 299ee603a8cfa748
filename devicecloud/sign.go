package devicecloud

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const signMethod = "HMAC-SHA256"

func (c *Client) signRequest(req *http.Request, path string, query url.Values, body []byte, token string) {
	t := strconv.FormatInt(c.now().UnixMilli(), 10)
	nonce := c.nonce()

	req.Header.Set("client_id", c.clientID)
	req.Header.Set("t", t)
	req.Header.Set("nonce", nonce)
	req.Header.Set("sign_method", signMethod)
	if token != "" {
		req.Header.Set("access_token", token)
	}
	req.Header.Set("sign", sign(c.clientID, c.clientSecret, token, t, nonce, stringToSign(req.Method, path, query, body)))
}

// stringToSign is METHOD \n hex(sha256(body)) \n (no signed headers) \n path?sorted-query.
func stringToSign(method, path string, query url.Values, body []byte) string {
	sum := sha256.Sum256(body)

	target := path
	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			for _, v := range query[k] {
				pairs = append(pairs, k+"="+v)
			}
		}
		target += "?" + strings.Join(pairs, "&")
	}

	return strings.Join([]string{method, hex.EncodeToString(sum[:]), "", target}, "\n")
}

func sign(clientID, secret, token, t, nonce, toSign string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(clientID + token + t + nonce + toSign))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
