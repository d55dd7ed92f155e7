package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/JonMunkholm/stockimport/internal/core"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func finished() core.Snapshot {
	return core.Snapshot{
		JobID:        "job-1",
		Status:       core.StatusCompletedWithErrors,
		TotalRows:    10,
		SuccessCount: 7,
		ErrorCount:   2,
		SkippedCount: 1,
		ElapsedMs:    1500,
		Terminal:     true,
	}
}

func TestSNSNotifier_Publishes(t *testing.T) {
	client := &fakeSNS{}
	n := &SNSNotifier{client: client, topicARN: "arn:aws:sns:us-east-1:123456789012:imports"}

	if err := n.NotifyJobComplete(context.Background(), "job-1", finished()); err != nil {
		t.Fatalf("NotifyJobComplete() error = %v", err)
	}

	in := client.input
	if in == nil {
		t.Fatal("Publish was not called")
	}
	if got := aws.ToString(in.TopicArn); got != n.topicARN {
		t.Errorf("TopicArn = %q, want %q", got, n.topicARN)
	}
	if got := aws.ToString(in.MessageAttributes["status"].StringValue); got != "COMPLETED_WITH_ERRORS" {
		t.Errorf("status attribute = %q", got)
	}
	if got := aws.ToString(in.MessageAttributes["event_type"].StringValue); got != EventImportFinished {
		t.Errorf("event_type attribute = %q", got)
	}

	var msg Message
	if err := json.Unmarshal([]byte(aws.ToString(in.Message)), &msg); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	want := NewMessage("job-1", finished())
	if msg != want {
		t.Errorf("message = %+v, want %+v", msg, want)
	}
}

func TestSNSNotifier_PublishError(t *testing.T) {
	n := &SNSNotifier{client: &fakeSNS{err: errors.New("throttled")}, topicARN: "arn"}

	err := n.NotifyJobComplete(context.Background(), "job-1", finished())
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Errorf("error = %v, want wrapped publish error", err)
	}
}

func TestNewSNSNotifier_RequiresTopic(t *testing.T) {
	if _, err := NewSNSNotifier(context.Background(), "", ""); err == nil {
		t.Error("NewSNSNotifier() should require a topic ARN")
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := n.NotifyJobComplete(context.Background(), "job-1", finished()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"import finished", "job_id=job-1", "status=COMPLETED_WITH_ERRORS", "errors=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}
