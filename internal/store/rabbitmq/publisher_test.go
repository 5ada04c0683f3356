package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTopology(t *testing.T) {
	topo := JobTopology("mail_jobs")
	assert.Equal(t, Topology{Work: "mail_jobs", Retry: "mail_jobs.retry", Dead: "mail_jobs.dlq"}, topo)
	assert.Equal(t, "mail_jobs", deadLetterTo(topo.Work)["x-dead-letter-routing-key"])
}

func TestDecodeJob(t *testing.T) {
	id, err := DecodeJob([]byte(`{"job_id":"01J0000000000000000000000"}`))
	require.NoError(t, err)
	assert.Equal(t, "01J0000000000000000000000", id)

	_, err = DecodeJob([]byte(`{}`))
	assert.Error(t, err)
	_, err = DecodeJob([]byte(`not json`))
	assert.Error(t, err)
}
