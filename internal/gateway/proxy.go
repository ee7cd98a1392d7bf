package gateway

import (
	"crypto/tls"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/medigate/pkg/middleware"
)

// headerKeyUser は認証済みユーザー情報をバックエンドへ伝播するHTTPヘッダーキー。
// バックエンドはゲートウェイ経由のネットワーク経路を信頼し、
// トークンを再検証せずにこのヘッダーを利用できる。
// そのためバックエンドはゲートウェイを迂回した直接アクセスから
// 到達不能な位置に配置しなければならない。
const headerKeyUser = "x-user"

// hopByHopHeaders はプロキシが中継してはならないホップバイホップヘッダー。
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// forward はルートの転送ハンドラを返す。
// パス書き換えを行った上で、アップグレード要求なら生ストリーム中継へ、
// それ以外は通常のHTTP転送へ振り分ける。
func (s *Server) forward(rt *route) gin.HandlerFunc {
	return func(c *gin.Context) {
		backendPath := rt.rule.rewrite(c.Request.URL.Path)
		if rt.upgradable && isUpgradeRequest(c.Request) {
			s.relayUpgrade(c, rt, backendPath)
			return
		}
		s.relayHTTP(c, rt, backendPath)
	}
}

// relayHTTP はリクエストをバックエンドへ転送し、レスポンスをそのまま返す。
// 元のリクエストヘッダー（Authorizationを含む）を転送し、認証済みユーザーが
// いる場合はx-userヘッダーとしてJSONシリアライズした情報を付与する。
// バックエンドに到達できない場合は502を返し、リトライは行わない。
func (s *Server) relayHTTP(c *gin.Context, rt *route, backendPath string) {
	proxyURL := rt.target.String() + backendPath
	if c.Request.URL.RawQuery != "" {
		proxyURL += "?" + c.Request.URL.RawQuery
	}

	// クライアント切断時にバックエンド接続も速やかに閉じるため、
	// 元リクエストのコンテキストを引き継ぐ。
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, proxyURL, c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "プロキシリクエストの作成に失敗しました",
		})
		return
	}
	req.Header = c.Request.Header.Clone()
	removeHopByHopHeaders(req.Header)
	req.ContentLength = c.Request.ContentLength
	injectIdentity(c, req.Header)

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error": "バックエンドサービスとの通信に失敗しました",
		})
		log.Printf("プロキシエラー: url=%s, error=%v", proxyURL, err)
		return
	}
	defer resp.Body.Close()

	header := c.Writer.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	removeHopByHopHeaders(header)
	c.Status(resp.StatusCode)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// レスポンスは書き込み途中のため、ログに残すことしかできない
		log.Printf("レスポンス中継エラー: url=%s, error=%v", proxyURL, err)
	}
}

// relayUpgrade はプロトコルアップグレード（WebSocket等）接続を中継する。
// クライアント接続をハイジャックし、バックエンドへ生TCP接続を張り、
// 書き換え済みパスでハンドシェイクを再送した後、両方向のバイト列を
// どちらかが切断するまで中継する。
func (s *Server) relayUpgrade(c *gin.Context, rt *route, backendPath string) {
	// ハイジャック前にダイヤルし、失敗時は通常のエラーレスポンスを返せるようにする
	backendConn, err := s.dialBackend(rt.target)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "バックエンドサービスとの通信に失敗しました",
		})
		log.Printf("アップグレード中継のダイヤルに失敗: target=%s, error=%v", rt.target.Host, err)
		return
	}

	outReq := c.Request.Clone(c.Request.Context())
	outReq.URL.Scheme = ""
	outReq.URL.Host = ""
	outReq.URL.Path = backendPath
	outReq.RequestURI = ""
	outReq.Host = rt.target.Host
	injectIdentity(c, outReq.Header)
	if err := outReq.Write(backendConn); err != nil {
		backendConn.Close()
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "バックエンドサービスとの通信に失敗しました",
		})
		log.Printf("アップグレードハンドシェイクの転送に失敗: target=%s, error=%v", rt.target.Host, err)
		return
	}

	hijacker, ok := c.Writer.(http.Hijacker)
	if !ok {
		backendConn.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "この接続はアップグレードに対応していません",
		})
		return
	}
	clientConn, clientRW, err := hijacker.Hijack()
	if err != nil {
		backendConn.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "クライアント接続の引き継ぎに失敗しました",
		})
		return
	}

	// ハンドシェイク後に読み込み済みのバッファがあれば先にバックエンドへ流す
	bridge(clientConn, clientRW.Reader, backendConn)
}

// bridge は2つのコネクション間でバイト列を双方向に中継する。
// 片方向の中継が終了（切断またはエラー）した時点で両方のコネクションを閉じ、
// もう一方の中継ゴルーチンも確実に解放する。コネクション対を漏らさない。
func bridge(clientConn net.Conn, clientReader io.Reader, backendConn net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		_, _ = io.Copy(backendConn, clientReader)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(clientConn, backendConn)
		done <- struct{}{}
	}()

	<-done
	clientConn.Close()
	backendConn.Close()
	<-done
}

// injectIdentity は認証済みユーザーがいる場合のみx-userヘッダーを付与する。
func injectIdentity(c *gin.Context, header http.Header) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return
	}
	header.Set(headerKeyUser, string(payload))
}

// dialBackend はアップグレード中継用のバックエンド接続を張る。
// HTTPSバックエンドにはTLSハンドシェイクを行う。
func (s *Server) dialBackend(u *url.URL) (net.Conn, error) {
	if u.Scheme == "https" {
		return tls.Dial("tcp", targetAddr(u), s.proxyTLSConfig)
	}
	return net.Dial("tcp", targetAddr(u))
}

// isUpgradeRequest はプロトコルアップグレードのハンドシェイクか判定する。
// Connectionヘッダーは複数行に分かれる場合があるためすべて走査する。
func isUpgradeRequest(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, value := range r.Header.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}

// removeHopByHopHeaders はホップバイホップヘッダーを取り除く。
// 固定リストに加えて、Connectionヘッダーが名指しするヘッダーも
// ホップバイホップとして扱う（RFC 7230 6.1）。
func removeHopByHopHeaders(header http.Header) {
	for _, value := range header.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			if token = strings.TrimSpace(token); token != "" {
				header.Del(token)
			}
		}
	}
	for _, key := range hopByHopHeaders {
		header.Del(key)
	}
}

// targetAddr はダイヤル用の host:port を返す。ポート省略時はスキームで補完する。
func targetAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return u.Hostname() + ":443"
	}
	return u.Hostname() + ":80"
}
