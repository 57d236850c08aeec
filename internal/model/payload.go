package model

import "time"

// PayloadSchema tags every final payload so downstream readers can detect format changes.
const PayloadSchema = "neo_potentials_session_v1"

// RankedCategory is one entry of a ranked score list
type RankedCategory struct {
	Category Category `json:"category" bson:"category"`
	Score    float64  `json:"score" bson:"score"`
}

// PayloadMeta identifies the session a payload was built from
type PayloadMeta struct {
	Schema        string    `json:"schema" bson:"schema"`
	AppVersion    string    `json:"appVersion" bson:"appVersion"`
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
	SessionID     string    `json:"sessionId" bson:"sessionId"`
	Name          string    `json:"name" bson:"name"`
	Contact       string    `json:"contact" bson:"contact"`
	Request       string    `json:"request" bson:"request"`
	QuestionCount int       `json:"questionCount" bson:"questionCount"`
	Model         string    `json:"model" bson:"model"`
	StopReason    string    `json:"stopReason" bson:"stopReason"`
}

// FinalPayload is the terminal view of a DONE session. It is persisted with the
// session and handed verbatim to the report generator.
type FinalPayload struct {
	Meta            PayloadMeta      `json:"meta" bson:"meta"`
	Answers         []AnswerRecord   `json:"answers" bson:"answers"`
	PositionGuess   PositionGuess    `json:"positionGuess" bson:"positionGuess"`
	Confidence      ConfidenceMap    `json:"confidence" bson:"confidence"`
	Scores          ScoreMap         `json:"scores" bson:"scores"`
	DimensionScores ScoreMatrix      `json:"dimensionScores" bson:"dimensionScores"`
	Top6            []RankedCategory `json:"top6" bson:"top6"`
}
