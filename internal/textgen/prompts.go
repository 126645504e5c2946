package textgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/reference"
)

const gradingSystemPrompt = `You are an expert marketing copy analyst with deep knowledge of conversion optimization, platform-specific best practices, and brand voice alignment.

Grade marketing copy based on:
- Clarity and readability
- Persuasiveness and emotional appeal
- Brand voice alignment
- Platform optimization
- Call-to-action effectiveness

Always provide specific, actionable feedback and suggestions for improvement.`

const funnelSystemPrompt = `You are a marketing funnel optimization expert. Analyze funnels for conversion opportunities, user experience flow, and brand alignment. Focus on practical, actionable insights.`

const rewriteSystemPrompt = `You are an expert copywriter. Answer with a single JSON object and nothing else.`

const gradingFormat = `Analyze the copy and provide feedback in JSON format. The JSON object must contain two keys: "score" (an integer from 1 to 10) and "feedback" (an array of strings with specific, actionable suggestions).`

func brandTitle(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func brandIntro(b reference.Brand, role string) string {
	return fmt.Sprintf("You are %s for %s, %s.\n\nThe brand voice of %s is: %s\n\n",
		role, brandTitle(b.Name), b.Description, brandTitle(b.Name), b.Voice)
}

func (s *Service) brand(name string) reference.Brand {
	if b, ok := s.catalog.Brand(name); ok {
		return b
	}
	return reference.Brand{Name: name, Description: "a consumer brand", Voice: s.catalog.BrandVoice(name)}
}

func (s *Service) gradingPrompt(brandName string, n *flow.Node) string {
	b := s.brand(brandName)
	var sb strings.Builder

	switch n.Type {
	case flow.TypeEmail:
		sb.WriteString(brandIntro(b, "an expert marketing copywriter and brand strategist"))
		if b.TargetUser != "" {
			fmt.Fprintf(&sb, "The target user for this message is %s.\n\n", b.TargetUser)
		}
		sb.WriteString(gradingFormat + "\n\n")
		sb.WriteString("Consider email marketing best practices: subject line optimization, personalization, clear CTAs, mobile optimization, and deliverability.\n\n")
		fmt.Fprintf(&sb, "Here is the copy to analyze:\nSubject: %s\nBody: %s", n.Str("subject"), n.Str("body"))
	case flow.TypePush:
		sb.WriteString(brandIntro(b, "an expert marketing copywriter and brand strategist"))
		sb.WriteString(gradingFormat + "\n\n")
		sb.WriteString("Consider push notification best practices: brevity, urgency, personalization, timing, and clear value proposition.\n\n")
		fmt.Fprintf(&sb, "Here is the push notification to analyze:\nTitle: %s\nBody: %s", n.Str("title"), n.Str("body"))
	case flow.TypeSocial:
		platform := n.Str("platform")
		sb.WriteString(brandIntro(b, "an expert "+platform+" marketing strategist"))
		sb.WriteString(gradingFormat + "\n\n")
		fmt.Fprintf(&sb, "Content: %s\n\n", n.Body())
		sb.WriteString("Consider character limits, hashtag strategy, engagement tactics, and visual content recommendations.")
	case flow.TypeAd:
		platform := n.Str("platform")
		sb.WriteString(brandIntro(b, "an expert "+platform+" advertising strategist"))
		sb.WriteString(gradingFormat + "\n\n")
		fmt.Fprintf(&sb, "Headline: %s\nPrimary Text: %s\n\n", n.Str("headline"), n.Body())
		sb.WriteString("Consider ad performance metrics, conversion optimization, audience targeting, and platform-specific ad formats.")
	default:
		fmt.Fprintf(&sb, "Please provide feedback on this %s content for %s.\n\n%s\n\n%s",
			n.Type, brandTitle(b.Name), gradingFormat, n.ContentFields())
	}

	return sb.String()
}

func (s *Service) funnelPrompt(brandName string, g *flow.Graph) string {
	b := s.brand(brandName)
	structure, _ := json.Marshal(g)

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a marketing funnel expert specializing in %s. You are analyzing a campaign for %s, %s.\n\n",
		b.IndustryContext, brandTitle(b.Name), b.Description)
	if b.BusinessGoals != "" {
		fmt.Fprintf(&sb, "The business goals are: %s\n\n", b.BusinessGoals)
	}
	fmt.Fprintf(&sb, "Channels being used: %s\n\n", strings.Join(campaign.Channels(g), ", "))
	sb.WriteString("Analyze the following campaign flow, provided as a JSON object of nodes and edges. ")
	sb.WriteString("Identify critical gaps in the user journey, missed opportunities for engagement, platform-specific optimizations, ")
	sb.WriteString("and suggest specific new nodes (email, push, etc.) to add to improve the campaign's performance against the business goals.\n\n")
	sb.WriteString("Provide your response as a JSON object with the following keys:\n")
	sb.WriteString("- \"suggestions\": array of objects with \"title\" and \"description\"\n")
	sb.WriteString("- \"missing_touchpoints\": array of recommended new nodes to add\n")
	sb.WriteString("- \"optimization_opportunities\": platform-specific improvements\n\n")
	sb.WriteString("Here is the campaign flow:\n")
	sb.Write(structure)
	return sb.String()
}

func (s *Service) rewritePrompt(brandName, text string, intent Intent, nodeType flow.NodeType) string {
	b := s.brand(brandName)
	title := brandTitle(b.Name)
	var sb strings.Builder

	switch intent {
	case IntentImprove:
		fmt.Fprintf(&sb, "You are an expert copywriter for %s, a platform with this brand voice: %s\n\n", title, b.Voice)
		fmt.Fprintf(&sb, "Improve the following %s copy to be more engaging and effective while maintaining the brand voice:\n\n", nodeType)
	case IntentEmpathetic:
		fmt.Fprintf(&sb, "You are an expert copywriter for %s. Make the following text more empathetic and understanding:\n\n", title)
	case IntentPlayful:
		fmt.Fprintf(&sb, "You are an expert copywriter for %s. Make the following text more playful and fun:\n\n", title)
	case IntentShorten:
		sb.WriteString("You are an expert copywriter. Make the following text more concise while keeping the key message:\n\n")
	case IntentLengthen:
		fmt.Fprintf(&sb, "You are an expert copywriter for %s. Expand the following text with more detail and persuasive elements:\n\n", title)
	case IntentHeadlines:
		fmt.Fprintf(&sb, "You are an expert copywriter for %s, a platform with this brand voice: %s\n\n", title, b.Voice)
		sb.WriteString("Create 5 alternative headlines/subject lines for this content:\n\n")
	}

	fmt.Fprintf(&sb, "Original: %s\n\n", text)
	if intent == IntentHeadlines {
		sb.WriteString(`Provide your response as JSON with this format: {"suggestions": ["headline 1", "headline 2", "headline 3", "headline 4", "headline 5"]}`)
	} else {
		sb.WriteString(`Provide your response as JSON with this format: {"rewritten_text": "new version here"}`)
	}
	return sb.String()
}

func (s *Service) chatSystemPrompt(brandName string, c *campaign.Campaign) string {
	var sb strings.Builder
	sb.WriteString("You are 'The AI Strategist', a world-class marketing expert and strategic advisor for Campaign Architect.\n")
	sb.WriteString("You are helpful, data-driven, concise, and strategic. You provide actionable advice based on marketing best practices.\n\n")

	sb.WriteString("BRAND CONTEXT:\n")
	if b, ok := s.catalog.Brand(brandName); ok {
		fmt.Fprintf(&sb, "%s is %s.\nBrand Voice: %s\nTarget Audience: %s\nBusiness Goals: %s\n",
			brandTitle(b.Name), b.Description, b.Voice, b.TargetUser, b.BusinessGoals)
	} else {
		fmt.Fprintf(&sb, "Brand information not available for %s.\n", brandName)
	}

	sb.WriteString("\nRESPONSE STYLE:\n")
	sb.WriteString("- Be conversational but professional\n")
	sb.WriteString("- Provide specific, actionable recommendations\n")
	sb.WriteString("- Ask clarifying questions when needed\n\n")
	sb.WriteString("IMPORTANT: If you don't have specific data, say so. Don't invent statistics.\n")

	if c != nil {
		structure, _ := json.Marshal(&c.Structure)
		sb.WriteString("\nCURRENT CAMPAIGN CONTEXT:\n")
		fmt.Fprintf(&sb, "Campaign: %s\nBrand: %s\nGoal: %s\nStructure: %s\n", c.Name, c.Brand, c.Goal, structure)
	}
	return sb.String()
}

func chatPrompt(req ChatRequest) string {
	if len(req.History) == 0 {
		return req.Message
	}
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, m := range req.History {
		role := m.Role
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, m.Content)
	}
	fmt.Fprintf(&sb, "\nuser: %s", req.Message)
	return sb.String()
}
