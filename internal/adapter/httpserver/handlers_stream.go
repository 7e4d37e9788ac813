package httpserver

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/labstack/echo/v4"
)

const (
	frameBoundary     = "frame"
	placeholderWidth  = 640
	placeholderHeight = 480
)

type indexPage struct {
	Hosted        bool
	ICEServers    []string
	HLSPort       int
	ChatMaxLength int
}

func (s *Server) handleIndex(c echo.Context) error {
	return s.renderTemplate(c, "index.html", indexPage{
		Hosted:        s.config.Hosted(),
		ICEServers:    s.config.ICEServerURLs(),
		HLSPort:       s.config.HLSPort,
		ChatMaxLength: s.config.ChatMaxLength,
	})
}

func (s *Server) handleStreamInfo(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.relay.StreamInfo()); err != nil {
		return fmt.Errorf("failed to write stream info: %w", err)
	}
	return nil
}

func (s *Server) handleRTMPKey(c echo.Context) error {
	urls := s.keys.Issue(c.Request().Host, s.relay.ViewerCount())
	slog.DebugContext(c.Request().Context(), "Issued RTMP stream key", "stream_key", urls.StreamKey)

	if err := c.JSON(http.StatusOK, urls); err != nil {
		return fmt.Errorf("failed to write rtmp key: %w", err)
	}
	return nil
}

// handleVideoFeed streams the placeholder frame as MJPEG until the client goes away.
func (s *Server) handleVideoFeed(c echo.Context) error {
	ctx := c.Request().Context()
	res := c.Response()

	mw := multipart.NewWriter(res)
	if err := mw.SetBoundary(frameBoundary); err != nil {
		return fmt.Errorf("failed to set boundary: %w", err)
	}

	res.Header().Set(echo.HeaderContentType, "multipart/x-mixed-replace; boundary="+frameBoundary)
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)

	if s.mediaMetrics != nil {
		s.mediaMetrics.VideoFeedClients.Inc()
		defer s.mediaMetrics.VideoFeedClients.Dec()
	}

	ticker := s.clock.NewTicker(s.config.VideoFeedInterval)
	defer ticker.Stop()

	header := textproto.MIMEHeader{echo.HeaderContentType: {"image/jpeg"}}
	for {
		part, err := mw.CreatePart(header)
		if err != nil {
			slog.DebugContext(ctx, "Video feed client gone", "error", err)
			return nil
		}
		if _, err := part.Write(s.placeholder); err != nil {
			slog.DebugContext(ctx, "Video feed client gone", "error", err)
			return nil
		}
		res.Flush()
		if s.mediaMetrics != nil {
			s.mediaMetrics.VideoFeedFrames.Inc()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// placeholderFrame renders the frame sent when no server camera is available.
func placeholderFrame() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 32, G: 32, B: 32, A: 255}}, image.Point{}, draw.Src)

	// center bar marks the frame as a placeholder
	bar := image.Rect(placeholderWidth/4, placeholderHeight/2-8, placeholderWidth*3/4, placeholderHeight/2+8)
	draw.Draw(img, bar, &image.Uniform{C: color.RGBA{R: 200, G: 40, B: 40, A: 255}}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
