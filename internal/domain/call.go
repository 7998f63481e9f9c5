package domain

type (
	// CallID scopes the participants of one real-time audio/video session.
	// Created by the external call-record collaborator, referenced here by id only.
	CallID string

	// EventID identifies an event whose participants form a group-chat audience.
	EventID string
)
