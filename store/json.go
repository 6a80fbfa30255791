package store

import (
	"encoding/json"

	"gorm.io/datatypes"
)

func jsonOrNull(raw []byte) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}
