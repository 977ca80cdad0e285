package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

var testClient = &http.Client{
	Timeout:   5 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

// startTestServer runs a server on a free loopback port and returns its base URL
func startTestServer(t *testing.T, enc Encoder) (*Server, string) {
	t.Helper()
	srv := NewServer(enc, testLogger{t})
	if err := srv.Start(0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(srv.Stop)

	port := srv.Addr().(*net.TCPAddr).Port
	return srv, fmt.Sprintf("http://127.0.0.1:%d", port)
}

// feedFrames pushes frames into srv until the returned stop func is called
func feedFrames(srv *Server) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		img := testImage(8, 8, color.White)
		for {
			select {
			case <-done:
				return
			default:
			}
			srv.UpdateFrame(img)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := testClient.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", url, err)
	}
	return resp, body
}

func TestServerNotFound(t *testing.T) {
	_, base := startTestServer(t, &counterEncoder{})

	resp, body := get(t, base+"/unknown")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if string(body) != notFoundBody {
		t.Errorf("body = %q, want %q", body, notFoundBody)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}

func TestServerViewer(t *testing.T) {
	_, base := startTestServer(t, &counterEncoder{})

	for _, path := range []string{"/", "/viewer", "/?x=1"} {
		resp, body := get(t, base+path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
			t.Errorf("%s Content-Type = %q", path, resp.Header.Get("Content-Type"))
		}
		if !bytes.Contains(body, []byte(`src="/stream"`)) {
			t.Errorf("%s page does not embed the stream", path)
		}
	}
}

func TestServerStatsBeforeFirstFrame(t *testing.T) {
	_, base := startTestServer(t, &counterEncoder{})

	before := uint64(time.Now().UnixMilli())
	resp, body := get(t, base+"/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if !bytes.Contains(body, []byte(`"estimatedFps":0.00`)) {
		t.Errorf("body %s lacks two-decimal fps", body)
	}

	var st struct {
		LatestFrameID     uint64  `json:"latestFrameId"`
		LatestCaptureTsMs uint64  `json:"latestCaptureTsMs"`
		ServerTsMs        uint64  `json:"serverTsMs"`
		EstimatedFps      float64 `json:"estimatedFps"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if st.LatestFrameID != 0 || st.LatestCaptureTsMs != 0 {
		t.Errorf("stats = %+v, want zero frame and capture ts", st)
	}
	if st.ServerTsMs < before {
		t.Errorf("serverTsMs = %d, want >= %d", st.ServerTsMs, before)
	}
}

func TestServerSnapshotWithoutFrame(t *testing.T) {
	_, base := startTestServer(t, &counterEncoder{})

	resp, body := get(t, base+"/snapshot")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q, want text/html", resp.Header.Get("Content-Type"))
	}
	if !bytes.Contains(body, []byte("No frame available")) {
		t.Errorf("body = %q", body)
	}
}

func TestServerSnapshotPNG(t *testing.T) {
	srv, base := startTestServer(t, &counterEncoder{})
	srv.UpdateFrame(testImage(8, 6, color.RGBA{R: 200, A: 255}))

	resp, body := get(t, base+"/snapshot?prefix=cam_01")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="cam_01_`) || !strings.HasSuffix(cd, `.png"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("snapshot size = %v, want 8x6", b.Size())
	}
}

func TestServerSnapshotEncodeFailure(t *testing.T) {
	enc := &counterEncoder{}
	srv, base := startTestServer(t, enc)
	srv.UpdateFrame(testImage(4, 4, color.White))
	enc.fail.Store(true)

	resp, body := get(t, base+"/snapshot")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("Image encoding failed")) {
		t.Errorf("body = %q", body)
	}
}

// streamReader opens /stream and returns a multipart reader over it
func streamReader(t *testing.T, base string) (*http.Response, *multipart.Reader) {
	t.Helper()
	resp, err := testClient.Get(base + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" {
		resp.Body.Close()
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	return resp, multipart.NewReader(resp.Body, params["boundary"])
}

// readFrameNumbers reads n parts and returns the counter in each payload
func readFrameNumbers(t *testing.T, mr *multipart.Reader, n int) []int {
	t.Helper()
	var nums []int
	for i := 0; i < n; i++ {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part Content-Type = %q, want image/jpeg", ct)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("reading part: %v", err)
		}
		var num int
		if _, err := fmt.Sscanf(string(data), "frame-%d", &num); err != nil {
			t.Fatalf("unexpected payload %q", data)
		}
		nums = append(nums, num)
	}
	return nums
}

func assertIncreasing(t *testing.T, nums []int) {
	t.Helper()
	for i := 1; i < len(nums); i++ {
		if nums[i] <= nums[i-1] {
			t.Errorf("frames not strictly increasing: %v", nums)
			return
		}
	}
}

func TestServerStreamMultipleClients(t *testing.T) {
	srv, base := startTestServer(t, &counterEncoder{})
	stop := feedFrames(srv)
	defer stop()

	resp1, mr1 := streamReader(t, base)
	resp2, mr2 := streamReader(t, base)
	defer resp2.Body.Close()

	assertIncreasing(t, readFrameNumbers(t, mr1, 5))
	assertIncreasing(t, readFrameNumbers(t, mr2, 5))

	// A client going away must not stall the others
	resp1.Body.Close()
	assertIncreasing(t, readFrameNumbers(t, mr2, 10))
}

func TestServerStopEndsStreams(t *testing.T) {
	srv, base := startTestServer(t, &counterEncoder{})
	stop := feedFrames(srv)
	defer stop()

	resp, mr := streamReader(t, base)
	defer resp.Body.Close()
	readFrameNumbers(t, mr, 2)

	srv.Stop()
	if srv.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}

	ended := make(chan error, 1)
	go func() {
		for {
			part, err := mr.NextPart()
			if err != nil {
				ended <- err
				return
			}
			if _, err := io.Copy(io.Discard, part); err != nil {
				ended <- err
				return
			}
		}
	}()
	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("stream still open after Stop")
	}
}

func TestServerLifecycle(t *testing.T) {
	srv := NewServer(&counterEncoder{}, testLogger{t})

	// Stop before Start is a no-op
	srv.Stop()
	if st := srv.State(); st != Stopped {
		t.Fatalf("State() = %s, want stopped", st)
	}

	if err := srv.Start(0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := srv.Start(0); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	srv.Stop()
	srv.Stop()
	if st := srv.State(); st != Stopped {
		t.Errorf("State() = %s after Stop, want stopped", st)
	}
	if srv.Addr() != nil {
		t.Error("Addr() non-nil after Stop")
	}

	// Restart serves again
	if err := srv.Start(0); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	defer srv.Stop()
	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Addr().(*net.TCPAddr).Port)
	if resp, _ := get(t, base+"/stats"); resp.StatusCode != http.StatusOK {
		t.Errorf("stats after restart status = %d", resp.StatusCode)
	}
}

func TestServerStartPortInUse(t *testing.T) {
	first, _ := startTestServer(t, &counterEncoder{})
	port := first.Addr().(*net.TCPAddr).Port

	second := NewServer(&counterEncoder{}, testLogger{t})
	if err := second.Start(port); err == nil {
		second.Stop()
		t.Fatal("Start() on a busy port succeeded")
	}
	if second.IsRunning() {
		t.Error("IsRunning() = true after failed Start")
	}
}

func TestServerRejectsGarbage(t *testing.T) {
	_, base := startTestServer(t, &counterEncoder{})
	addr := strings.TrimPrefix(base, "http://")

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	if _, err := conn.Write([]byte("GARBAGE\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(reply, []byte("HTTP/1.1 404 Not Found\r\n")) {
		t.Errorf("reply = %q, want a 404", reply)
	}
}

// openRawStream requests /stream on a plain connection and reads until the
// first part payload has arrived
func openRawStream(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Write([]byte("GET /stream HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got []byte
	buf := make([]byte, 512)
	for !bytes.Contains(got, []byte("frame-")) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("reading first part: %v (got %q)", err, got)
		}
		got = append(got, buf[:n]...)
	}
	return conn
}

func TestServerRestartEndsPreviousStreams(t *testing.T) {
	srv, base := startTestServer(t, &counterEncoder{})

	const rounds, clients = 5, 10
	for round := 0; round < rounds; round++ {
		srv.UpdateFrame(testImage(4, 4, color.White))

		addr := strings.TrimPrefix(base, "http://")
		conns := make([]net.Conn, clients)
		for i := range conns {
			conns[i] = openRawStream(t, addr)
		}

		// Restart right away, before the handlers get to observe the stop
		srv.Stop()
		if err := srv.Start(0); err != nil {
			t.Fatalf("round %d: restart error = %v", round, err)
		}
		base = fmt.Sprintf("http://127.0.0.1:%d", srv.Addr().(*net.TCPAddr).Port)
		srv.UpdateFrame(testImage(4, 4, color.White))

		for i, conn := range conns {
			conn.SetDeadline(time.Now().Add(3 * time.Second))
			if _, err := io.Copy(io.Discard, conn); err != nil {
				t.Errorf("round %d: stream %d from the stopped run still open: %v", round, i, err)
			}
			conn.Close()
		}
	}
}
