package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"iltv-proxy/work/logger"
	"iltv-proxy/work/metrics"
	"iltv-proxy/work/utils"
)

// SegmentURL rebuilds the upstream URL for a proxied segment path. The auth
// prefix rotates with the upstream manifest, so it is re-derived per request
// from the current master and variant; the manifest cache absorbs the extra
// fetches.
func (p *Proxy) SegmentURL(ctx context.Context, segmentPath string) (string, error) {
	masterURL, err := p.source(ctx)
	if err != nil {
		return "", err
	}

	master, err := p.fetchManifest(ctx, masterURL)
	if err != nil {
		return "", err
	}

	variantPath, err := VariantPath(master)
	if err != nil {
		return "", err
	}

	prefix, err := AuthPrefix(variantPath)
	if err != nil {
		return "", err
	}

	base, err := url.Parse(masterURL)
	if err != nil {
		return "", fmt.Errorf("parsing master URL: %w", err)
	}

	return base.Scheme + "://" + base.Host + path.Dir(base.Path) + "/" + segmentPath + "?" + prefix, nil
}

// StreamSegment fetches the upstream segment behind segmentPath and streams
// it to w. The response body is never buffered whole.
func (p *Proxy) StreamSegment(ctx context.Context, w http.ResponseWriter, segmentPath string) error {
	segmentURL, err := p.SegmentURL(ctx, segmentPath)
	if err != nil {
		metrics.SegmentErrors.WithLabelValues("resolve").Inc()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.SegmentTimeout)
	defer cancel()

	resp, err := p.client.Get(ctx, segmentURL, "")
	if err != nil {
		metrics.SegmentErrors.WithLabelValues("fetch").Inc()
		logger.Error("fetching segment %s: %v", utils.LogURL(p.config, segmentURL), err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		metrics.SegmentErrors.WithLabelValues("status").Inc()
		logger.Error("segment %s -> HTTP %d", utils.LogURL(p.config, segmentURL), resp.StatusCode)
		return fmt.Errorf("segment fetch status %d", resp.StatusCode)
	}

	w.Header().Set("Content-Type", "video/MP2T")
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}

	n, err := p.copyBody(w, resp)
	metrics.SegmentBytes.Add(float64(n))
	if err != nil {
		metrics.SegmentErrors.WithLabelValues("copy").Inc()
		logger.Debug("segment copy aborted after %d bytes: %v", n, err)
		return fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
	}

	logger.Debug("served segment %s (%d bytes)", segmentPath, n)
	return nil
}

func (p *Proxy) copyBody(w http.ResponseWriter, resp *http.Response) (int64, error) {
	if f, ok := w.(http.Flusher); ok {
		defer f.Flush()
	}
	buf := p.buffers.Get()
	defer p.buffers.Put(buf)
	return io.CopyBuffer(w, resp.Body, buf.B)
}
