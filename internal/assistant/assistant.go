// Package assistant is the scripted fitness coach: replies are picked by keyword, no model behind it.
package assistant

import (
	"errors"
	"strings"
)

var ErrEmptyMessage = errors.New("empty message")

type Topic string

const (
	TopicWorkout   Topic = "workout"
	TopicNutrition Topic = "nutrition"
	TopicRecovery  Topic = "recovery"
	TopicGoal      Topic = "goal"
	TopicFallback  Topic = "fallback"
)

const Greeting = "Hi! 👋 I'm your AI fitness coach. Ask me anything about workouts, nutrition, recovery, or goal setting!"

type Reply struct {
	Topic   Topic    `json:"topic"`
	Content string   `json:"content"`
	Tips    []string `json:"tips"`
}

type QuickQuestion struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var QuickQuestions = []QuickQuestion{
	{Label: "Suggest a workout", Value: "Can you suggest a good workout for chest and arms?"},
	{Label: "Nutrition tips", Value: "What are the best foods for muscle gain?"},
	{Label: "Recovery tips", Value: "How can I improve my recovery?"},
	{Label: "Goal setting", Value: "How should I set my fitness goals?"},
}

// rules are checked in order, the first topic with a matching keyword wins.
var rules = []struct {
	topic    Topic
	keywords []string
}{
	{TopicWorkout, []string{"workout", "exercise"}},
	{TopicNutrition, []string{"nutrition", "food", "eat"}},
	{TopicRecovery, []string{"recovery", "rest", "sleep"}},
	{TopicGoal, []string{"goal", "target"}},
}

var replies = map[Topic]Reply{
	TopicWorkout: {
		Topic:   TopicWorkout,
		Content: "Here's a great workout routine for you:\n\n1. Warm-up (5 min)\n2. Main exercises (30 min)\n3. Cool-down (5 min)\n\nRemember to focus on form over weight!",
		Tips:    []string{"Rest 60-90 seconds between sets", "Stay hydrated", "Track your progress"},
	},
	TopicNutrition: {
		Topic:   TopicNutrition,
		Content: "Here are key foods for muscle gain:\n\n• Lean proteins: Chicken, fish, eggs\n• Complex carbs: Brown rice, oats, sweet potatoes\n• Healthy fats: Almonds, avocados, olive oil",
		Tips:    []string{"Eat in a caloric surplus", "Get 1g protein per lb bodyweight", "Time meals around workouts"},
	},
	TopicRecovery: {
		Topic:   TopicRecovery,
		Content: "Recovery is crucial for muscle growth. Here's how to optimize it:\n\n• Sleep 7-9 hours per night\n• Stretch for 10-15 minutes post-workout\n• Stay hydrated and maintain nutrition",
		Tips:    []string{"Use foam rolling for 2 minutes per muscle", "Take rest days seriously", "Manage stress through meditation"},
	},
	TopicGoal: {
		Topic:   TopicGoal,
		Content: "Smart fitness goal setting:\n\nUse the SMART framework:\n• Specific: \"Lose 10kg\"\n• Measurable: Track weekly\n• Achievable: Be realistic\n• Relevant: Aligns with lifestyle\n• Time-bound: Set a deadline",
		Tips:    []string{"Break goals into smaller milestones", "Review progress monthly", "Adjust as needed"},
	},
	TopicFallback: {
		Topic:   TopicFallback,
		Content: "That's a great question! To give you the best advice, could you tell me more about your fitness goals? Are you looking to build muscle, lose weight, increase endurance, or something else?",
		Tips:    []string{},
	},
}

// Respond picks the reply for a user message. Keywords match anywhere in the message,
// so "great" counts as "eat" and "interest" as "rest".
func Respond(message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}

	lower := strings.ToLower(message)
	for _, rule := range rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return copyReply(replies[rule.topic]), nil
			}
		}
	}
	return copyReply(replies[TopicFallback]), nil
}

func copyReply(r Reply) Reply {
	r.Tips = append([]string{}, r.Tips...)
	return r
}
