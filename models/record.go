package models

import "time"

// Record is the canonical document written to the search index, one per
// Discord message. The MessageID is the upsert key: writing the same
// identity twice replaces the previous version wholesale, which is what
// keeps re-polled edits and refreshed reaction counts from duplicating.
type Record struct {
	MessageID         string         `json:"message_id"`
	ServerName        string         `json:"server_name"`
	ServerID          string         `json:"server_id"`
	SenderID          string         `json:"sender_id"`
	SenderUsername    string         `json:"sender_username"`
	SenderDisplayName string         `json:"sender_display_name"`
	SenderIsBot       bool           `json:"sender_is_bot"`
	SenderRoles       []string       `json:"sender_roles"`
	ChannelID         string         `json:"channel_id"`
	ChannelTitle      string         `json:"channel_title"`
	ChannelCategory   string         `json:"channel_category"`
	ChannelCategoryID string         `json:"channel_category_id"`
	ThreadID          string         `json:"thread_id"`
	ThreadTitle       string         `json:"thread_title"`
	ThreadCategory    string         `json:"thread_category"`
	ThreadCategoryID  string         `json:"thread_category_id"`
	Text              string         `json:"text"`
	CleanText         string         `json:"clean_text"`
	EmojiList         []string       `json:"emoji_list"`
	EmojiImgList      []string       `json:"emoji_img_list"`
	CashtagList       []string       `json:"cashtag_list"`
	Timestamp         time.Time      `json:"timestamp"`
	ComputedAt        time.Time      `json:"computed_at"`
	IsReply           bool           `json:"is_reply"`
	ReplyToMessageID  string         `json:"reply_to_msg"`
	Mentions          []string       `json:"mentions"`
	Reactions         map[string]int `json:"reactions_dict"`
	ReactionsImg      map[string]int `json:"reactions_img_dict"`
	Media             []string       `json:"media"`
}
