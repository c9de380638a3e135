package media

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, kind Kind, payload string) (string, error) {
	args := m.Called(kind, payload)
	return args.String(0), args.Error(1)
}
