package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidators_NotBlank(t *testing.T) {
	require.NoError(t, RegisterValidators())
	require.NoError(t, RegisterValidators())

	err := binding.Validator.ValidateStruct(&DistributeRequest{ProductName: "   ", Quantity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notblank")

	assert.NoError(t, binding.Validator.ValidateStruct(&DistributeRequest{ProductName: "Widget", Quantity: 1}))
}

func TestCreateUnitsRequest_AlertWindow(t *testing.T) {
	require.NoError(t, RegisterValidators())
	zero, negative := 0, -1

	omitted := CreateUnitsRequest{ProductName: "Saline", Quantity: 1}
	assert.NoError(t, binding.Validator.ValidateStruct(&omitted))
	assert.Nil(t, omitted.ToProductData("").AlertWindowDays)

	explicit := CreateUnitsRequest{ProductName: "Saline", Quantity: 1, AlertWindowDays: &zero}
	assert.NoError(t, binding.Validator.ValidateStruct(&explicit))
	data := explicit.ToProductData("op-1")
	require.NotNil(t, data.AlertWindowDays)
	assert.Equal(t, 0, *data.AlertWindowDays)
	assert.Equal(t, "op-1", data.OperationID)

	bad := CreateUnitsRequest{ProductName: "Saline", Quantity: 1, AlertWindowDays: &negative}
	assert.Error(t, binding.Validator.ValidateStruct(&bad))
}
