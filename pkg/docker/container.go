package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/harryosmar/log-visibility/pkg/metrics"
	"github.com/harryosmar/log-visibility/pkg/models"
	"go.uber.org/zap"
)

// LineFunc receives one log line with the stream it was written to
type LineFunc func(line string, stream string, meta models.ContainerMeta)

// Options configures a ContainerManager
type Options struct {
	MaxStreams    int
	SinceWindow   time.Duration
	BufferSize    int
	DropOnFull    bool
	FilterLabels  []string
	AllContainers bool
}

type logLine struct {
	text   string
	stream string
}

// cursor holds the newest docker timestamp read from a container, so that a
// reopened stream resumes after it instead of replaying the since window
type cursor struct {
	mu   sync.Mutex
	last time.Time
}

// observe records the timestamp docker prefixes to line, if any
func (c *cursor) observe(line string) {
	ts, _, ok := strings.Cut(line, " ")
	if !ok {
		return
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return
	}
	c.mu.Lock()
	if t.After(c.last) {
		c.last = t
	}
	c.mu.Unlock()
}

// since returns the Since option for the next ContainerLogs call. Before any
// line was read it is the configured window back from now.
func (c *cursor) since(now time.Time, window time.Duration) string {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()

	if last.IsZero() {
		return now.Add(-window).Format(time.RFC3339)
	}
	// docker's since is inclusive
	next := last.Add(time.Nanosecond)
	return fmt.Sprintf("%d.%09d", next.Unix(), next.Nanosecond())
}

// ContainerManager tails container logs and hands every line to a LineFunc
type ContainerManager struct {
	client      *client.Client
	logger      *zap.Logger
	metrics     *metrics.Metrics
	opts        Options
	processLine LineFunc
}

// NewContainerManager creates a new container manager
func NewContainerManager(
	logger *zap.Logger,
	metrics *metrics.Metrics,
	opts Options,
	processLine LineFunc,
) (*ContainerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	if opts.MaxStreams <= 0 {
		opts.MaxStreams = 1
	}

	return &ContainerManager{
		client:      cli,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
		processLine: processLine,
	}, nil
}

// MatchesLabels reports whether labels satisfy any of the filters. A filter
// is either "key" (label present) or "key=value".
func MatchesLabels(labels map[string]string, filterLabels []string) bool {
	for _, filterLabel := range filterLabels {
		parts := strings.SplitN(filterLabel, "=", 2)
		value, exists := labels[parts[0]]
		if !exists {
			continue
		}
		if len(parts) == 1 || value == parts[1] {
			return true
		}
	}
	return false
}

// ListContainers lists containers based on configured filters
func (cm *ContainerManager) ListContainers(ctx context.Context) ([]types.Container, error) {
	if cm.opts.AllContainers {
		return cm.client.ContainerList(ctx, container.ListOptions{})
	}

	if len(cm.opts.FilterLabels) == 0 {
		// Default filter if no labels specified
		f := filters.NewArgs()
		f.Add("label", "com.docker.swarm.service.name")
		return cm.client.ContainerList(ctx, container.ListOptions{Filters: f})
	}

	allContainers, err := cm.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, err
	}

	var filteredContainers []types.Container
	for _, c := range allContainers {
		if MatchesLabels(c.Labels, cm.opts.FilterLabels) {
			filteredContainers = append(filteredContainers, c)
		}
	}
	return filteredContainers, nil
}

// StartMonitoring tails the matching containers and follows start/die events
func (cm *ContainerManager) StartMonitoring(ctx context.Context) error {
	sem := make(chan struct{}, cm.opts.MaxStreams)
	cancelMap := sync.Map{}

	evsFilter := filters.NewArgs()
	evsFilter.Add("type", "container")
	evsFilter.Add("event", "start")
	evsFilter.Add("event", "die")
	eventsCh, errsCh := cm.client.Events(ctx, events.ListOptions{Filters: evsFilter})

	containers, err := cm.ListContainers(ctx)
	if err != nil {
		return err
	}

	for _, c := range containers {
		cm.startTail(ctx, sem, &cancelMap, c.ID)
	}

	go func() {
		eb := newBackOff()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-eventsCh:
				if !ok {
					return
				}
				eb.Reset()
				id := ev.Actor.ID
				switch ev.Action {
				case events.ActionStart:
					cm.startTail(ctx, sem, &cancelMap, id)
				case events.ActionDie:
					if v, ok := cancelMap.LoadAndDelete(id); ok {
						v.(context.CancelFunc)()
					}
				}
			case err, ok := <-errsCh:
				if !ok {
					return
				}
				delay := eb.NextBackOff()
				cm.logger.Warn("Events error, reconnecting", zap.Error(err), zap.Duration("delay", delay))
				cm.metrics.IncReconnects()
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				eventsCh, errsCh = cm.client.Events(ctx, events.ListOptions{Filters: evsFilter})
			}
		}
	}()

	return nil
}

// startTail starts tailing logs for a container
func (cm *ContainerManager) startTail(ctx context.Context, sem chan struct{}, cancelMap *sync.Map, cid string) {
	if _, running := cancelMap.Load(cid); running {
		return
	}

	inspect, err := cm.client.ContainerInspect(ctx, cid)
	if err != nil {
		cm.logger.Warn("Inspect failed", zap.String("id", cid), zap.Error(err))
		return
	}

	meta := models.ContainerMeta{
		ID:     cid,
		Name:   strings.TrimPrefix(inspect.Name, "/"),
		Labels: inspect.Config.Labels,
	}
	if !cm.opts.AllContainers && len(cm.opts.FilterLabels) > 0 && !MatchesLabels(meta.Labels, cm.opts.FilterLabels) {
		return
	}
	tty := inspect.Config.Tty

	cctx, cancel := context.WithCancel(ctx)
	cancelMap.Store(cid, cancel)

	go func() {
		select {
		case sem <- struct{}{}:
		case <-cctx.Done():
			return
		}
		defer func() { <-sem }()
		defer cancelMap.Delete(cid)

		cm.metrics.IncStreamsActive()
		defer cm.metrics.DecStreamsActive()

		cm.tailLogs(cctx, meta, tty)
	}()
}

// newBackOff returns the reconnect schedule for logs and events
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	return b
}

// openLogs opens the log stream of a container, retrying with backoff
func (cm *ContainerManager) openLogs(ctx context.Context, meta models.ContainerMeta, cur *cursor) (io.ReadCloser, error) {
	operation := func() (io.ReadCloser, error) {
		since := cur.since(time.Now(), cm.opts.SinceWindow)
		return cm.client.ContainerLogs(ctx, meta.ID, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Timestamps: true,
			Since:      since,
		})
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			cm.metrics.IncReconnects()
			cm.logger.Warn("Fetch failed", zap.String("id", meta.ID), zap.Error(err), zap.Duration("delay", delay))
		}),
	)
}

// tailLogs tails logs for a container until ctx is done
func (cm *ContainerManager) tailLogs(ctx context.Context, meta models.ContainerMeta, tty bool) {
	buffer := make(chan logLine, cm.opts.BufferSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for l := range buffer {
			cm.processLine(l.text, l.stream, meta)
		}
	}()
	defer func() {
		close(buffer)
		wg.Wait()
	}()

	cur := &cursor{}
	for ctx.Err() == nil {
		r, err := cm.openLogs(ctx, meta, cur)
		if err != nil {
			return
		}
		cm.readStreams(ctx, r, tty, buffer, meta, cur)
		r.Close()
	}
}

// readStreams splits a docker log stream into stdout and stderr lines
func (cm *ContainerManager) readStreams(ctx context.Context, r io.Reader, tty bool, buffer chan<- logLine, meta models.ContainerMeta, cur *cursor) {
	if tty {
		cm.scan(ctx, r, models.StreamStdout, buffer, meta, cur)
		return
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(outW, errW, r)
		outW.CloseWithError(err)
		errW.CloseWithError(err)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cm.scan(ctx, outR, models.StreamStdout, buffer, meta, cur)
		outR.CloseWithError(io.ErrClosedPipe)
	}()
	go func() {
		defer wg.Done()
		cm.scan(ctx, errR, models.StreamStderr, buffer, meta, cur)
		errR.CloseWithError(io.ErrClosedPipe)
	}()
	wg.Wait()
}

// scan sends every line of r to buffer and moves cur past it
func (cm *ContainerManager) scan(ctx context.Context, r io.Reader, stream string, buffer chan<- logLine, meta models.ContainerMeta, cur *cursor) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024) // Increase scanner buffer to handle large log lines

	for s.Scan() {
		l := logLine{text: s.Text(), stream: stream}
		cur.observe(l.text)
		select {
		case <-ctx.Done():
			return
		case buffer <- l:
		default:
			if cm.opts.DropOnFull {
				cm.metrics.IncLinesDropped()
				continue
			}
			select {
			case buffer <- l:
			case <-ctx.Done():
				return
			}
		}
	}

	if err := s.Err(); err != nil && err != io.ErrClosedPipe && ctx.Err() == nil {
		cm.logger.Warn("Scanner error", zap.String("id", meta.ID), zap.String("stream", stream), zap.Error(err))
	}
}

// Close closes the Docker client
func (cm *ContainerManager) Close() error {
	return cm.client.Close()
}
