package validation

import (
	"reflect"

	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"
	"gopkg.in/go-playground/validator.v9"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

func SetUpValidators() {
	log.Info().Msg("Setting up custom validators")
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation(NodeIdValidatorTag, NodeIdValidator)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up node id validator")
		}
		err = v.RegisterValidation(VoteValidatorTag, VoteValidator)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up vote validator")
		}
	}
}

var NodeIdValidatorTag = "nodeId"
var NodeIdValidator validator.Func = func(fl validator.FieldLevel) bool {
	nodeId, ok := fl.Field().Interface().(crossing.NodeId)
	if ok {
		if _, err := crossing.NodeIdFromString(string(nodeId)); err != nil {
			return false
		}
	}
	return true
}

var VoteValidatorTag = "vote"

// VoteValidator accepts vote.Vote fields as well as plain ints
var VoteValidator validator.Func = func(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if _, err := vote.FromInt(int(field.Int())); err != nil {
			return false
		}
	}
	return true
}
