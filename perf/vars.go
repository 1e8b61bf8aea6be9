package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	FrameSize           = metric.NewHistogram("10s1s")
	SentFramePerSecond  = metric.NewCounter("10s1s")
	RecvFramePerSecond  = metric.NewCounter("10s1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")
	HelloSent           = metric.NewCounter("1m10s")
	StcSent             = metric.NewCounter("1m10s")
	TreeStatusSent      = metric.NewCounter("1m10s")
	ColorSent           = metric.NewCounter("1m10s")
	WarningsPerSecond   = metric.NewCounter("10s1s")
	ColoringsFinished   = metric.NewCounter("1h1m")
	CommandsPerSecond   = metric.NewCounter("10s1s")
	DroppedFramesPerSec = metric.NewCounter("10s1s")
)

// FrameSent records one transmitted frame of the given type tag.
func FrameSent(typ byte, size int) {
	SentFramePerSecond.Add(1)
	SentBytesPerSecond.Add(float64(size))
	FrameSize.Add(float64(size))
	switch typ {
	case 'H':
		HelloSent.Add(1)
	case 'S':
		StcSent.Add(1)
	case 'T':
		TreeStatusSent.Add(1)
	case 'C':
		ColorSent.Add(1)
	}
}

func FrameReceived(size int) {
	RecvFramePerSecond.Add(1)
	RecvBytesPerSecond.Add(float64(size))
}

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("opera:FrameSize", FrameSize)

	expvar.Publish("opera:SentFrame/s", SentFramePerSecond)
	expvar.Publish("opera:RecvFrame/s", RecvFramePerSecond)
	expvar.Publish("opera:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("opera:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("opera:HelloSent", HelloSent)
	expvar.Publish("opera:StcSent", StcSent)
	expvar.Publish("opera:TreeStatusSent", TreeStatusSent)
	expvar.Publish("opera:ColorSent", ColorSent)
	expvar.Publish("opera:Warnings/s", WarningsPerSecond)
	expvar.Publish("opera:ColoringsFinished", ColoringsFinished)
	expvar.Publish("opera:Commands/s", CommandsPerSecond)
	expvar.Publish("opera:DroppedFrames/s", DroppedFramesPerSec)
	expvar.Publish("opera:DispatchLatency (µs)", DispatchLatency)
}
