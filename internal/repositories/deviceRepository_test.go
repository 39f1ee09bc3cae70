package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"loomtrade/internal/database"
	"loomtrade/internal/models"
)

func TestDeviceRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}

	db := database.New()
	defer db.Close(context.Background())

	deviceRepo := NewDeviceRepository(db)
	userID := primitive.NewObjectID()

	t.Run("Insert, ListByUser Ordering and Delete", func(t *testing.T) {
		base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
		for i, id := range []string{"d1", "d2", "d3"} {
			device := &models.Device{
				UserID:    userID,
				DeviceID:  id,
				Category:  models.DeviceCategoryMobile,
				LastSeen:  base.Add(time.Duration(i) * time.Minute),
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			_, err := deviceRepo.Insert(context.Background(), device)
			assert.NoError(t, err)
		}

		devices, err := deviceRepo.ListByUser(context.Background(), userID)
		assert.NoError(t, err)
		assert.Len(t, devices, 3)
		assert.Equal(t, "d1", devices[0].DeviceID)
		assert.Equal(t, "d3", devices[2].DeviceID)

		count, err := deviceRepo.CountByUser(context.Background(), userID)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), count)

		assert.NoError(t, deviceRepo.DeleteByID(context.Background(), devices[0].ID))

		found, err := deviceRepo.FindByUserAndDevice(context.Background(), userID, "d1")
		assert.NoError(t, err)
		assert.Nil(t, found)
	})
}
