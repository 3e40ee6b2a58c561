package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	log "github.com/sirupsen/logrus"
)

type fakeCloudWatch struct {
	cloudwatchiface.CloudWatchAPI
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (f *fakeCloudWatch) PutMetricDataWithContext(_ aws.Context, in *cloudwatch.PutMetricDataInput, _ ...request.Option) (*cloudwatch.PutMetricDataOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestTimers(t *testing.T) {
	c := New(WithLogger(quietLogger()), WithClock(steppingClock(2*time.Second)))
	c.Start("extract")
	if d := c.Stop("extract"); d != 2*time.Second {
		t.Errorf("Stop() = %v, want 2s", d)
	}
	if d := c.Stop("never"); d != 0 {
		t.Errorf("Stop(never) = %v, want 0", d)
	}
	c.Record("records", 42)

	got := c.Metrics()
	if got["extract_duration"] != 2 || got["records"] != 42 || len(got) != 2 {
		t.Errorf("Metrics() = %v", got)
	}
}

func TestPublish_Disabled(t *testing.T) {
	c := New(WithLogger(quietLogger()))
	c.Record("records", 1)
	res, err := c.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Status != StatusSkipped {
		t.Errorf("Status = %q, want skipped", res.Status)
	}
}

func TestPublish_Batches(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := New(WithLogger(quietLogger()), WithCloudWatch(fake), WithRunID("run-1"), WithJobName("job"))
	for i := 0; i < 45; i++ {
		c.Record(fmt.Sprintf("count_%02d", i), float64(i))
	}
	c.Record("load_duration", 1.5)

	res, err := c.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Status != StatusSuccess || res.Published != 46 {
		t.Errorf("Publish() = %+v, want 46 published", res)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("PutMetricData called %d times, want 3", len(fake.calls))
	}
	if n := len(fake.calls[2].MetricData); n != 6 {
		t.Errorf("last batch = %d datums, want 6", n)
	}

	for _, call := range fake.calls {
		if aws.StringValue(call.Namespace) != DefaultNamespace {
			t.Errorf("Namespace = %q", aws.StringValue(call.Namespace))
		}
		for _, d := range call.MetricData {
			want := cloudwatch.StandardUnitCount
			if aws.StringValue(d.MetricName) == "load_duration" {
				want = cloudwatch.StandardUnitSeconds
			}
			if aws.StringValue(d.Unit) != want {
				t.Errorf("%s unit = %s, want %s", aws.StringValue(d.MetricName), aws.StringValue(d.Unit), want)
			}
			if len(d.Dimensions) != 2 || aws.StringValue(d.Dimensions[1].Value) != "run-1" {
				t.Errorf("%s dimensions = %v", aws.StringValue(d.MetricName), d.Dimensions)
			}
		}
	}
}

func TestPublish_Error(t *testing.T) {
	boom := errors.New("throttled")
	c := New(WithLogger(quietLogger()), WithCloudWatch(&fakeCloudWatch{err: boom}))
	c.Record("x", 1)
	if _, err := c.Publish(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Publish() error = %v, want %v", err, boom)
	}
}

func TestRunIDDefault(t *testing.T) {
	a, b := New(), New()
	if a.RunID() == "" || a.RunID() == b.RunID() {
		t.Errorf("run ids %q and %q should be distinct and non-empty", a.RunID(), b.RunID())
	}
}
