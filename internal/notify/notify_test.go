package notify

import (
	"context"
	"testing"

	"BucketDash/model"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailerBuildsReport(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.local", Port: "25", From: "ops@example.com"})
	require.NoError(t, err)

	var sent *email.Email
	m.send = func(e *email.Email) error {
		sent = e
		return nil
	}
	task := &model.FolderDeleteTask{
		ID:            7,
		ActorID:       "root",
		Prefix:        "projects/<old>/",
		Status:        model.TaskStatusCompleted,
		ObjectsFailed: 2,
		BatchesFailed: 1,
	}
	require.NoError(t, m.SendFolderDeleteReport(context.Background(), "admin@example.com", task))

	require.NotNil(t, sent)
	assert.Equal(t, []string{"admin@example.com"}, sent.To)
	assert.Equal(t, "Folder delete completed: projects/<old>/", sent.Subject)
	assert.Contains(t, string(sent.HTML), "Objects failed: 2")
	assert.Contains(t, string(sent.HTML), "projects/&lt;old&gt;/")
}

func TestNewSMTPMailerRequiresHost(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{Port: "25", From: "a@b"})
	assert.Error(t, err)
}
