package inmemdb

import (
	"testing"

	"github.com/nexaric/portal/tests"
)

func TestPaymentRepository(t *testing.T) {
	testutil.AttemptRepositoryTest(t, NewPaymentRepository(Open()))
}
